package service

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/haatos/forgeci/internal/store"
)

func NewEventQueue(partitions int, size int64) *EventQueue {
	if partitions < 1 {
		partitions = 1
	}
	q := &EventQueue{
		partitions: make([]chan *store.WebhookEvent, partitions),
		done:       make(chan struct{}),
	}
	for i := range q.partitions {
		q.partitions[i] = make(chan *store.WebhookEvent, size)
	}
	return q
}

// EventQueue fans persisted webhook events out to a fixed set of workers.
// Events are partitioned by repository so deliveries for one repository are
// processed in order, while different repositories proceed in parallel.
type EventQueue struct {
	partitions []chan *store.WebhookEvent
	done       chan struct{}
	wg         sync.WaitGroup
}

func (q *EventQueue) Enqueue(e *store.WebhookEvent) error {
	p := q.partitions[q.partition(e)]
	select {
	case p <- e:
		return nil
	default:
		return NewErrEventQueueFull()
	}
}

func (q *EventQueue) Run(process func(*store.WebhookEvent)) {
	for _, p := range q.partitions {
		q.wg.Add(1)
		go func(ch chan *store.WebhookEvent) {
			defer q.wg.Done()
			for {
				select {
				case e := <-ch:
					process(e)
				case <-q.done:
					return
				}
			}
		}(p)
	}
}

func (q *EventQueue) Shutdown() {
	close(q.done)
	q.wg.Wait()
}

// partition keys on the provider repository id embedded in the payload,
// falling back to the delivery id when no repository can be read out.
func (q *EventQueue) partition(e *store.WebhookEvent) int {
	var peek struct {
		Repository struct {
			ID int64 `json:"id"`
		} `json:"repository"`
		ProjectID int64 `json:"project_id"`
		Project   struct {
			ID int64 `json:"id"`
		} `json:"project"`
	}
	key := string(e.Provider) + ":" + e.DeliveryID
	if err := json.Unmarshal([]byte(e.Payload), &peek); err == nil {
		repoID := peek.Repository.ID
		if repoID == 0 {
			repoID = peek.Project.ID
		}
		if repoID == 0 {
			repoID = peek.ProjectID
		}
		if repoID != 0 {
			key = fmt.Sprintf("%s:%d", e.Provider, repoID)
		}
	}

	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(q.partitions)))
}
