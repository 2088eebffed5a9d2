package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntitiesFamilies(t *testing.T) {
	text := "the parseConfig helper writes user_id and RetryPolicy via cfg over 250ms, see Jenkins"
	got := Entities(text, 0)
	assert.Equal(t, []string{"parseConfig", "user_id", "RetryPolicy", "cfg", "250ms", "Jenkins"}, got)
}

func TestEntitiesCap(t *testing.T) {
	text := "alphaOne betaTwo gammaThree deltaFour epsilonFive"
	got := Entities(text, 3)
	assert.Len(t, got, 3)
}

func TestEntitiesPlainProse(t *testing.T) {
	assert.Empty(t, Entities("The quick brown fox jumped over a lazy dog", 10))
}

func TestEntitiesStoplist(t *testing.T) {
	got := Entities("However the deploy failed, Marcus restarted Grafana", 10)
	assert.NotContains(t, got, "However")
	assert.Contains(t, got, "Marcus")
	assert.Contains(t, got, "Grafana")
}

func TestEntitiesDedup(t *testing.T) {
	got := Entities("retryCount grew, then retryCount reset", 10)
	assert.Equal(t, []string{"retryCount"}, got)
}

func TestMissing(t *testing.T) {
	entities := []string{"parseConfig", "user_id", "Grafana"}
	got := Missing("summary mentions parseConfig only", entities)
	assert.Equal(t, []string{"user_id", "Grafana"}, got)
}
