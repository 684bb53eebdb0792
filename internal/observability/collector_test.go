package observability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

func TestSessionCollector_RecordRequest(t *testing.T) {
	c := NewSessionCollector()

	c.RecordRequest(riot.RequestInfo{Method: "GET", URL: "/by-name/Ari"},
		riot.RequestResult{StatusCode: 200, Duration: 50 * time.Millisecond})
	c.RecordRequest(riot.RequestInfo{Method: "GET", URL: "/by-name/Faker"},
		riot.RequestResult{StatusCode: 0, Duration: 10 * time.Millisecond, Error: errors.New("dial tcp: refused")})

	s := c.Summary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 1, s.FailedRequests)
	assert.Equal(t, 60*time.Millisecond, s.TotalLatency)
}

func TestSessionCollector_RecordOperation(t *testing.T) {
	c := NewSessionCollector()
	op := riot.OperationInfo{Service: "Summoner", Operation: "ByName"}

	c.RecordOperation(op, nil, time.Millisecond)
	c.RecordOperation(op, output.ErrNotFound("summoner", "Nobody"), time.Millisecond)
	c.RecordOperation(op, output.ErrNotFound("summoner", "Ghost"), time.Millisecond)
	c.RecordOperation(op, errors.New("boom"), time.Millisecond)

	s := c.Summary()
	assert.Equal(t, 4, s.TotalOperations)
	assert.Equal(t, 3, s.FailedOps)
	assert.Equal(t, 2, s.ErrorsByCode[output.CodeNotFound])
	assert.Equal(t, 1, s.ErrorsByCode[output.CodeAPI])
}

func TestSessionCollector_CacheCounters(t *testing.T) {
	c := NewSessionCollector()

	c.ObserveLookup("summoner", true)
	c.ObserveLookup("summoner", false)
	c.ObserveLookup("mastery", true)
	c.ObserveSweep("summoner", 3)
	c.ObserveSweep("mastery", 0)

	s := c.Summary()
	assert.Equal(t, 2, s.CacheHits)
	assert.Equal(t, 1, s.CacheMisses)
	assert.Equal(t, 3, s.Swept)
}

func TestSessionCollector_SummaryIsSnapshot(t *testing.T) {
	c := NewSessionCollector()
	c.RecordOperation(riot.OperationInfo{}, errors.New("x"), 0)

	s := c.Summary()
	s.ErrorsByCode["mutated"] = 1

	assert.NotContains(t, c.Summary().ErrorsByCode, "mutated")
}

func TestSessionCollector_Reset(t *testing.T) {
	c := NewSessionCollector()
	c.RecordRequest(riot.RequestInfo{}, riot.RequestResult{StatusCode: 200})
	c.ObserveLookup("version", false)
	before := c.Summary().StartTime

	time.Sleep(time.Millisecond)
	c.Reset()

	s := c.Summary()
	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.CacheMisses)
	assert.True(t, s.StartTime.After(before))
	assert.NotNil(t, s.ErrorsByCode)
}

func TestSessionCollector_Concurrent(t *testing.T) {
	c := NewSessionCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordRequest(riot.RequestInfo{}, riot.RequestResult{StatusCode: 200})
				c.ObserveLookup("summoner", j%2 == 0)
			}
		}()
	}
	wg.Wait()

	s := c.Summary()
	assert.Equal(t, 1000, s.TotalRequests)
	assert.Equal(t, 500, s.CacheHits)
	assert.Equal(t, 500, s.CacheMisses)
}
