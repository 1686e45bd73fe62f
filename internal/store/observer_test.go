package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListenersNotifyInOrder(t *testing.T) {
	var l listeners[int]
	var got []string
	l.add(func(v int) { got = append(got, "a") })
	l.add(func(v int) { got = append(got, "b") })

	l.notify(1)

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestListenersUnsubscribeDuringNotify(t *testing.T) {
	var l listeners[int]
	calls := 0
	var unsubscribe func()
	unsubscribe = l.add(func(v int) {
		calls++
		unsubscribe()
	})

	l.notify(1)
	l.notify(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, l.len())
}
