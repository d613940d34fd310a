package interceptor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_FulfilledHandlersRunInOrder(t *testing.T) {
	c := New[int]()
	c.Use(Handler[int]{Fulfilled: func(v int) (int, error) { return v + 1, nil }})
	c.Use(Handler[int]{Fulfilled: func(v int) (int, error) { return v * 2, nil }})

	out, err := c.Run(3)
	assert.NoError(t, err)
	assert.Equal(t, 8, out) // (3+1)*2
}

func TestChain_RejectedHandlerCanRecover(t *testing.T) {
	c := New[string]()
	boom := errors.New("boom")
	c.Use(Handler[string]{Fulfilled: func(string) (string, error) { return "", boom }})
	c.Use(Handler[string]{Rejected: func(_ string, err error) (string, error) {
		if err == boom {
			return "recovered", nil
		}
		return "", err
	}})
	c.Use(Handler[string]{Fulfilled: func(v string) (string, error) { return v + "!", nil }})

	out, err := c.Run("start")
	assert.NoError(t, err)
	assert.Equal(t, "recovered!", out)
}

func TestChain_UnrecoveredErrorPropagates(t *testing.T) {
	c := New[int]()
	boom := errors.New("boom")
	c.Use(Handler[int]{Fulfilled: func(int) (int, error) { return 0, boom }})

	_, err := c.Run(1)
	assert.Equal(t, boom, err)
}

func TestChain_RemoveDropsHandler(t *testing.T) {
	c := New[int]()
	remove := c.Use(Handler[int]{Fulfilled: func(v int) (int, error) { return v + 100, nil }})
	remove()

	out, err := c.Run(1)
	assert.NoError(t, err)
	assert.Equal(t, 1, out)
}
