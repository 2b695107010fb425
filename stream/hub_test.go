package stream

import (
	"testing"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger
}

func TestHubFanOut(t *testing.T) {
	h := NewHub(testLogger())
	a := h.Subscribe("conn-a")
	b := h.Subscribe("conn-b")

	h.Publish("task_created", map[string]string{"id": "t1"})

	for name, ch := range map[string]<-chan []byte{"a": a, "b": b} {
		select {
		case data := <-ch:
			var got struct {
				Type    string            `json:"type"`
				Payload map[string]string `json:"payload"`
			}
			if err := sonic.Unmarshal(data, &got); err != nil {
				t.Fatalf("sub %s: invalid frame: %v", name, err)
			}
			if got.Type != "task_created" || got.Payload["id"] != "t1" {
				t.Fatalf("sub %s: unexpected frame: %+v", name, got)
			}
		default:
			t.Fatalf("sub %s: expected buffered frame", name)
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(testLogger())
	a := h.Subscribe("conn-a")
	b := h.Subscribe("conn-b")

	h.Unsubscribe("conn-a")
	h.Publish("task_deleted", map[string]string{"id": "t1"})

	select {
	case <-a:
		t.Fatal("unsubscribed connection received frame")
	default:
	}
	select {
	case <-b:
	default:
		t.Fatal("remaining subscriber lost frame")
	}
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(testLogger())
	ch := h.Subscribe("slow")

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish("task_updated", i)
	}

	// The publisher never blocked; the buffer holds the oldest frames.
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected full buffer of %d, got %d", subscriberBuffer, len(ch))
	}

	var got struct {
		Payload int `json:"payload"`
	}
	if err := sonic.Unmarshal(<-ch, &got); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	if got.Payload != 0 {
		t.Fatalf("expected FIFO delivery starting at 0, got %d", got.Payload)
	}
}

func TestHubResubscribeReplaces(t *testing.T) {
	h := NewHub(testLogger())
	old := h.Subscribe("conn")
	fresh := h.Subscribe("conn")

	h.Publish("activity", "x")

	select {
	case <-fresh:
	default:
		t.Fatal("replacement subscriber lost frame")
	}
	select {
	case <-old:
		t.Fatal("stale subscriber still receiving")
	default:
	}
}
