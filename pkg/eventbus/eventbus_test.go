package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/backoffice/pkg/logging"
)

type changed struct {
	path string
}

type other struct{}

func bufferedLogger(level logrus.Level) (*bytes.Buffer, *logrus.Logger) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return buf, log
}

func TestPublisher_NoMatchingSubscribers(t *testing.T) {
	buf, log := bufferedLogger(logrus.DebugLevel)
	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *changed) {
		t.Error("should not be called")
	})
	publisher.Publish(&other{})

	require.Contains(t, buf.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	var got []string
	publisher.Subscribe(func(ctx context.Context, e *changed) {
		got = append(got, e.path)
	})
	publisher.Publish(context.Background(), &changed{path: "/flights"})
	publisher.Publish(&changed{path: "/ignored"})

	require.Equal(t, []string{"/flights"}, got)
	require.Equal(t, 1, publisher.SubscribersCount())
}

func TestPublisher_Unsubscribe(t *testing.T) {
	publisher := NewEventPublisher(nil)
	calls := 0
	handler := func(e *changed) { calls++ }
	publisher.Subscribe(handler)
	publisher.Publish(&changed{})
	publisher.Unsubscribe(handler)
	publisher.Publish(&changed{})

	require.Equal(t, 1, calls)
	require.Zero(t, publisher.SubscribersCount())

	publisher.Subscribe(handler)
	publisher.Clear()
	require.Zero(t, publisher.SubscribersCount())
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *changed) {}, []interface{}{&changed{}}))
	require.False(t, MatchSignature(func(e *changed) {}, []interface{}{&other{}}))
	require.False(t, MatchSignature(func(e *changed) {}, []interface{}{}))
	require.False(t, MatchSignature(func(e *changed) {}, []interface{}{&changed{}, &changed{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []interface{}{context.Background()}))
	require.True(t, MatchSignature(func(e *changed) {}, []interface{}{nil}))
	require.False(t, MatchSignature("not a func", nil))
}

func TestPublisher_PanicRecovery(t *testing.T) {
	buf, log := bufferedLogger(logrus.ErrorLevel)
	publisher := NewEventPublisher(log)

	called := false
	publisher.Subscribe(func(e *changed) {
		panic("intentional panic for testing")
	})
	publisher.Subscribe(func(e *changed) {
		called = true
	})

	require.NotPanics(t, func() { publisher.Publish(&changed{path: "/parcels"}) })
	require.True(t, called, "later subscribers still run")
	output := buf.String()
	require.True(t, strings.Contains(output, "panicked"), output)
	require.Contains(t, output, "intentional panic for testing")
}

func TestPublisher_PublishE(t *testing.T) {
	t.Run("no subscribers", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		require.ErrorIs(t, publisher.PublishE(&changed{}), ErrNoSubscribers)
	})

	t.Run("joins handler errors", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		boom := errors.New("boom")
		publisher.Subscribe(func(e *changed) error { return boom })
		publisher.Subscribe(func(e *changed) error { return nil })
		publisher.Subscribe(func(e *changed) { panic("bad") })

		err := publisher.PublishE(&changed{})
		require.ErrorIs(t, err, boom)
		require.Contains(t, err.Error(), "panicked")
	})

	t.Run("rejects non-error returns", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.Subscribe(func(e *changed) string { return "x" })
		require.ErrorIs(t, publisher.PublishE(&changed{}), ErrInvalidHandlerReturn)
	})
}

func TestPublisher_ConcurrentSubscribeAndPublish(t *testing.T) {
	publisher := NewEventPublisher(nil)
	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			publisher.Subscribe(func(e *changed) {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			publisher.Publish(&changed{})
		}()
	}
	wg.Wait()
	require.Equal(t, 20, publisher.SubscribersCount())
	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, calls, 20*20)
}
