package linear

import (
	"math"
	"math/rand"
	"sort"
)

type Options struct {
	Epochs       int
	LearningRate float64
}

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	AUC      float64 `json:"auc"`
}

// TrainLogistic fits a logistic regression with full-batch gradient descent
// and evaluates it on the training set.
func TrainLogistic(samples [][]float64, labels []float64, opts Options) (Weights, Metrics) {
	if opts.Epochs <= 0 {
		opts.Epochs = 200
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.01
	}

	n := len(samples)
	if n == 0 {
		return Weights{}, Metrics{}
	}
	featureCount := len(samples[0])
	weights := make([]float64, featureCount)
	var bias float64

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		grad := make([]float64, featureCount)
		var biasGrad float64
		for i, sample := range samples {
			prediction := sigmoid(dot(weights, sample) + bias)
			residual := prediction - labels[i]
			for j := 0; j < featureCount; j++ {
				grad[j] += residual * sample[j]
			}
			biasGrad += residual
		}
		for j := 0; j < featureCount; j++ {
			weights[j] -= opts.LearningRate * grad[j] / float64(n)
		}
		bias -= opts.LearningRate * biasGrad / float64(n)
	}

	w := Weights{Bias: bias, Coefficients: weights}
	return w, Evaluate(w, samples, labels)
}

func Predict(weights Weights, sample []float64) float64 {
	return sigmoid(dot(weights.Coefficients, sample) + weights.Bias)
}

// Evaluate computes log loss, accuracy at the 0.5 cut, and ROC AUC.
func Evaluate(weights Weights, samples [][]float64, labels []float64) Metrics {
	if len(samples) == 0 {
		return Metrics{}
	}
	var loss float64
	var correct int
	scores := make([]float64, len(samples))
	for i, sample := range samples {
		prediction := Predict(weights, sample)
		scores[i] = prediction
		loss += -labels[i]*math.Log(prediction+1e-9) - (1-labels[i])*math.Log(1-prediction+1e-9)
		if (prediction >= 0.5 && labels[i] == 1) || (prediction < 0.5 && labels[i] == 0) {
			correct++
		}
	}
	return Metrics{
		Loss:     loss / float64(len(samples)),
		Accuracy: float64(correct) / float64(len(samples)),
		AUC:      AUC(scores, labels),
	}
}

// AUC is the Mann-Whitney estimate of the area under the ROC curve, with
// half credit for tied scores. Degenerate single-class inputs score 0.5.
func AUC(scores, labels []float64) float64 {
	type pair struct {
		score float64
		label float64
	}
	pairs := make([]pair, len(scores))
	var positives, negatives float64
	for i := range scores {
		pairs[i] = pair{scores[i], labels[i]}
		if labels[i] == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	// Rank sum with mid-ranks for ties.
	var rankSum float64
	i := 0
	for i < len(pairs) {
		j := i
		for j < len(pairs) && pairs[j].score == pairs[i].score {
			j++
		}
		midRank := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			if pairs[k].label == 1 {
				rankSum += midRank
			}
		}
		i = j
	}

	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

// Split shuffles the sample indexes with a fixed seed and carves off a
// validation fraction. The split is deterministic for a given seed.
func Split(samples [][]float64, labels []float64, validationFraction float64, seed int64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	n := len(samples)
	order := rand.New(rand.NewSource(seed)).Perm(n)

	valCount := int(math.Round(float64(n) * validationFraction))
	if valCount < 1 && n > 1 {
		valCount = 1
	}

	for i, idx := range order {
		if i < valCount {
			valX = append(valX, samples[idx])
			valY = append(valY, labels[idx])
		} else {
			trainX = append(trainX, samples[idx])
			trainY = append(trainY, labels[idx])
		}
	}
	return trainX, trainY, valX, valY
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
