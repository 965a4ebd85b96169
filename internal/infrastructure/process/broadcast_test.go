package process

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_FansOutUntilClosed(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	var wg sync.WaitGroup
	collect := func(ch <-chan Line, out *[]string) {
		defer wg.Done()
		for line := range ch {
			*out = append(*out, line.Text)
		}
	}
	var gotFirst, gotSecond []string
	wg.Add(2)
	go collect(first, &gotFirst)
	go collect(second, &gotSecond)

	b.Publish(Line{Text: "a"})
	b.Publish(Line{Text: "b"})
	b.Close()
	b.Publish(Line{Text: "dropped"})
	wg.Wait()

	assert.Equal(t, []string{"a", "b"}, gotFirst)
	assert.Equal(t, []string{"a", "b"}, gotSecond)
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster()
	b.Close()
	b.Close()
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
}

func TestSupervisor_NotifyPublishesOnErrorStream(t *testing.T) {
	sup := NewSupervisor(nil)
	errs := sup.Err.Subscribe()
	outs := sup.Out.Subscribe()

	sup.Notify("a_test.dart", "skipping a_test.dart: test suite failed")
	sup.Close()

	line, ok := <-errs
	assert.True(t, ok)
	assert.Equal(t, Line{Source: "a_test.dart", Stream: Stderr, Text: "skipping a_test.dart: test suite failed"}, line)
	_, ok = <-outs
	assert.False(t, ok)
}
