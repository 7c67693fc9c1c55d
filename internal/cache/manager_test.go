package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManager_SweepNowClearsStalePatientEntries(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.PatientIndex.Put("P1", PatientIndex{}, now)

	m.SweepNow(now.Add(patientCacheTTL + time.Minute))
	assert.Equal(t, 0, m.PatientIndex.Len())
}

func TestManager_StartAndStopDoesNotPanic(t *testing.T) {
	m := NewManager()
	m.Start()
	m.Stop()
}
