package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_PreservesOrder(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(8)

	for i := 0; i < 5; i++ {
		s.Publish(Message[int]{Action: Create, Next: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case msg := <-sub.C():
			assert.Equal(t, i, msg.Next)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestUnsubscribe_NoFurtherDelivery(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(8)
	sub.Unsubscribe()

	s.Publish(Message[int]{Action: Create, Next: 1})

	_, ok := <-sub.C()
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestUnsubscribe_SafeToCallTwice(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
}

func TestPublish_DoesNotBlockOnFullSubscriber(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Publish(Message[int]{Action: Create, Next: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
	_ = sub
}

func TestMerge_DeliversFromAllSources(t *testing.T) {
	s1 := New[int]()
	s2 := New[int]()
	sub1 := s1.Subscribe(4)
	sub2 := s2.Subscribe(4)

	merged := Merge(sub1, sub2)

	s1.Publish(Message[int]{Action: Create, Next: 1})
	s2.Publish(Message[int]{Action: Create, Next: 2})
	s1.Close()
	s2.Close()

	seen := map[int]bool{}
	for msg := range merged {
		seen[msg.Next] = true
	}
	require.Len(t, seen, 2)
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}

func TestClose_MakesPublishANoop(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(4)
	s.Close()

	s.Publish(Message[int]{Action: Create, Next: 1})

	_, ok := <-sub.C()
	assert.False(t, ok)
}
