package server

// Broadcasting of pipeline events and async job updates to WebSocket clients.
// Every message goes only to connections of the dataset owner.

import (
	"time"

	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/pulse/async"
)

// broadcastToOwner queues msg on every client of ownerID.
// Returns the number of clients that accepted the message (queue not full).
func (s *Server) broadcastToOwner(ownerID string, msg interface{}) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for client := range s.clients {
		if client.ownerID != ownerID {
			continue
		}
		select {
		case client.send <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
			s.logger.Debugw("Client queue full, dropping message",
				"client_id", client.id,
				"total_drops", s.broadcastDrops.Load(),
			)
		}
	}
	return sent
}

// startEventBroadcaster forwards pipeline events to their owner's clients
func (s *Server) startEventBroadcaster() {
	events, unsubscribe := s.svc.Events().Subscribe(MaxClientMessageQueueSize)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Event broadcaster stopping due to context cancellation")
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.broadcastToOwner(ev.OwnerID, DatasetEventMessage{Type: "dataset_event", Event: ev})
			}
		}
	}()

	s.logger.Infow("Event broadcaster started")
}

// startJobUpdateBroadcaster subscribes to job queue updates and forwards them
// to the owner of the job's dataset
func (s *Server) startJobUpdateBroadcaster() {
	queue := s.pool.Queue()
	jobChan := queue.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// Unsubscribe first, then close: closing while subscribed could panic on send
			queue.Unsubscribe(jobChan)
			close(jobChan)
		}()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Debugw("Job update broadcaster stopping due to context cancellation")
				return
			case job := <-jobChan:
				s.broadcastJobUpdate(job)
			}
		}
	}()

	s.logger.Infow("Job update broadcaster started")
}

// broadcastJobUpdate sends a job update to the dataset owner's clients
func (s *Server) broadcastJobUpdate(job *async.Job) {
	if job.Source == "" || s.clientCount() == 0 {
		return
	}
	d, err := s.svc.Store().GetDataset(s.ctx, job.Source)
	if err != nil {
		s.logger.Debugw("Skipping job update for unknown dataset",
			logger.FieldJobID, job.ID,
			logger.FieldDatasetID, job.Source,
			logger.FieldError, err,
		)
		return
	}

	s.broadcastToOwner(d.OwnerID, JobUpdateMessage{
		Type:      "job_update",
		Job:       job,
		Timestamp: time.Now().Unix(),
	})
}
