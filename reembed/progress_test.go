package reembed

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Counts(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 10, 4)
	progress.Start()

	progress.Stored(3)
	progress.Failed(2)
	progress.Stored(5)

	stored, failed := progress.Counts()
	assert.Equal(t, 8, stored)
	assert.Equal(t, 2, failed)
	assert.Contains(t, buf.String(), "10/10 (100.0%) stored=8 failed=2")
}

func TestProgress_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 1000, 100)
	progress.Start()

	progress.Stored(50)
	assert.Empty(t, buf.String(), "should not print under interval")

	progress.Failed(50)
	assert.Contains(t, buf.String(), "100/1000 (10.0%) stored=50 failed=50")

	buf.Reset()
	progress.Stored(99)
	assert.Empty(t, buf.String())

	progress.Stored(1)
	assert.Contains(t, buf.String(), "200/1000")
}

func TestProgress_FinishReportsActualCounts(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 100, 10)
	progress.Start()

	progress.Stored(60)
	progress.Failed(15)
	progress.Finish()

	output := buf.String()
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should end the line")
	lines := strings.Split(strings.TrimSpace(output), "\r")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "75/100 (75.0%) stored=60 failed=15")
	assert.Contains(t, last, "fragments/s")
}

func TestProgress_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 10, 1)
	progress.Start()

	progress.Stored(15)
	assert.Contains(t, buf.String(), "10/10")
	stored, _ := progress.Counts()
	assert.Equal(t, 15, stored)
}

func TestProgress_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 0, 10)

	progress.Start()
	progress.Finish()

	assert.Contains(t, buf.String(), "0/0 (0.0%)")
}

func TestProgress_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(&buf, 100, 10)

	progress.Stored(10)
	progress.Failed(10)
	progress.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, progress.Elapsed())
	stored, failed := progress.Counts()
	assert.Zero(t, stored)
	assert.Zero(t, failed)
}

func TestProgress_NilWriterAndInterval(t *testing.T) {
	progress := NewProgress(nil, 5, 0)
	progress.Start()
	time.Sleep(time.Millisecond)
	progress.Stored(5)
	progress.Finish()

	assert.Greater(t, progress.Elapsed(), time.Duration(0))
}

func TestProgress_Concurrent(t *testing.T) {
	progress := NewProgress(nil, 200, 10)
	progress.Start()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				progress.Failed(1)
			} else {
				progress.Stored(1)
			}
		}(i)
	}
	wg.Wait()

	stored, failed := progress.Counts()
	assert.Equal(t, 75, stored)
	assert.Equal(t, 25, failed)
}
