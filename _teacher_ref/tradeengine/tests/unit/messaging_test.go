package unit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/terminal-bench/tradeengine/pkg/messaging"
)

func TestClientCreation(t *testing.T) {
	t.Run("should create client with options", func(t *testing.T) {
		// Note: This test would need a mock NATS server
		// Testing configuration parsing
		opts := messaging.ClientOptions{
			Name:          "test-client",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		}

		assert.Equal(t, "test-client", opts.Name)
		assert.Equal(t, time.Second, opts.ReconnectWait)
		assert.Equal(t, 5, opts.MaxReconnects)
	})
}

func TestClientReconnection(t *testing.T) {
	t.Run("should track reconnection attempts", func(t *testing.T) {
		
		var reconnects int32
		var connected int32

		// Simulate reconnection handler behavior
		reconnectHandler := func() {
			atomic.AddInt32(&reconnects, 1)
			
			connected = 1
		}

		// Simulate multiple reconnections
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reconnectHandler()
			}()
		}
		wg.Wait()

		// reconnects should be 10
		assert.Equal(t, int32(10), atomic.LoadInt32(&reconnects))
		// connected flag may have race issues (bug)
	})
}

func TestMessagePublish(t *testing.T) {
	t.Run("should serialize message correctly", func(t *testing.T) {
		// Test message serialization
		msg := map[string]interface{}{
			"type":    "order",
			"symbol":  "BTC-USD",
			"price":   50000.0,
			"quantity": 1.5,
		}

		assert.NotNil(t, msg)
		assert.Equal(t, "order", msg["type"])
	})

	t.Run("should handle large payloads", func(t *testing.T) {
		// Test with large payload
		largeData := make([]byte, 1024*1024) // 1MB
		for i := range largeData {
			largeData[i] = byte(i % 256)
		}

		assert.Len(t, largeData, 1024*1024)
	})
}

func TestSubscriptionHandling(t *testing.T) {
	t.Run("should handle subscription callback", func(t *testing.T) {
		
		received := make(chan bool, 1)

		// Simulated subscription callback
		callback := func(data []byte) {
			
			received <- true
		}

		// Simulate message delivery
		go callback([]byte("test"))

		select {
		case <-received:
			// OK
		case <-time.After(time.Second):
			t.Fatal("Callback not invoked")
		}
	})

	t.Run("should handle slow subscriber", func(t *testing.T) {
		// Test for potential blocking
		messages := make(chan []byte, 5)

		// Fill the buffer
		for i := 0; i < 5; i++ {
			messages <- []byte("msg")
		}

		// Next message would block without proper handling
		select {
		case messages <- []byte("overflow"):
			t.Fatal("Should not succeed - buffer full")
		default:
			// Expected - buffer full
		}
	})
}

func TestJetStreamConfig(t *testing.T) {
	t.Run("should configure stream correctly", func(t *testing.T) {
		config := struct {
			Name       string
			Subjects   []string
			MaxMsgs    int64
			MaxBytes   int64
			MaxAge     time.Duration
			Replicas   int
		}{
			Name:     "ORDERS",
			Subjects: []string{"orders.>"},
			MaxMsgs:  1000000,
			MaxBytes: 1024 * 1024 * 1024, // 1GB
			MaxAge:   24 * time.Hour,
			Replicas: 1,
		}

		assert.Equal(t, "ORDERS", config.Name)
		assert.Contains(t, config.Subjects, "orders.>")
	})

	t.Run("should handle durable consumer", func(t *testing.T) {
		config := struct {
			Durable       string
			AckPolicy     string
			MaxDeliver    int
			AckWait       time.Duration
		}{
			Durable:    "order-processor",
			AckPolicy:  "explicit",
			MaxDeliver: 3,
			AckWait:    30 * time.Second,
		}

		assert.Equal(t, "order-processor", config.Durable)
		assert.Equal(t, 3, config.MaxDeliver)
	})
}

func TestMessageOrdering(t *testing.T) {
	t.Run("should preserve order in single partition", func(t *testing.T) {
		
		var messages []int
		var mu sync.Mutex

		// Simulate ordered message delivery
		for i := 0; i < 10; i++ {
			mu.Lock()
			messages = append(messages, i)
			mu.Unlock()
		}

		// Check order
		for i := 0; i < 10; i++ {
			assert.Equal(t, i, messages[i])
		}
	})

	t.Run("should handle out-of-order delivery", func(t *testing.T) {
		// Simulate out-of-order scenario
		received := make(map[int]bool)
		order := []int{3, 1, 4, 1, 5, 9, 2, 6}

		for _, seq := range order {
			
			received[seq] = true
		}

		assert.True(t, received[1])
		assert.True(t, received[5])
	})
}

func TestConnectionPooling(t *testing.T) {
	t.Run("should limit concurrent connections", func(t *testing.T) {
		maxConns := 10
		var activeConns int32

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				current := atomic.AddInt32(&activeConns, 1)
				if current > int32(maxConns) {
					t.Errorf("Too many connections: %d", current)
				}

				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&activeConns, -1)
			}()
		}

		wg.Wait()
	})
}
