package pipeline

import (
	"math"
	"strings"

	"github.com/ShayCichocki/pairline/pkg/models"
)

// Score weights.
const (
	dependencyWeight  = 1.5
	descriptionWeight = 0.1
	detailsWeight     = 0.05
	maxScore          = 10
)

// Score returns a task's complexity in [0,10] with one decimal place: the
// mean of dependency count, description length, priority weight and details
// length, each scaled by its weight.
func Score(t models.Task) float64 {
	factors := [4]float64{
		float64(len(t.Dependencies)) * dependencyWeight,
		float64(wordCount(t.Description)) * descriptionWeight,
		t.Priority.Weight(),
		float64(wordCount(t.Details)) * detailsWeight,
	}
	score := (factors[0] + factors[1] + factors[2] + factors[3]) / 4
	score = math.Min(score, maxScore)
	return math.Round(score*10) / 10
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
