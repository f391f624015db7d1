package transport

import (
	"DistMR/internal/coordinator"
	"DistMR/internal/logger"
)

// Service adapts the coordinator to net/rpc's method shape.
type Service struct {
	coord  *coordinator.Coordinator
	logger *logger.Logger
}

func (s *Service) GetNumReduce(args *WorkerArgs, reply *NumReduceReply) error {
	reply.NReduce = s.coord.NumReduce()
	return nil
}

func (s *Service) GetMapTask(args *WorkerArgs, reply *MapTaskReply) error {
	reply.Task, reply.Found = s.coord.GetMapTask()
	if reply.Found {
		s.logger.Info("Map task assigned: task_id=%d name=%s worker_id=%s", reply.Task.ID, reply.Task.Name, args.WorkerID)
	}
	return nil
}

func (s *Service) CompleteMapTask(args *CompleteArgs, reply *CompleteReply) error {
	if err := s.coord.CompleteMapTask(args.ID); err != nil {
		s.logger.Warn("Map completion rejected: task_id=%d worker_id=%s err=%v", args.ID, args.WorkerID, err)
		return err
	}
	reply.Accepted = true
	s.logger.Info("Map task completed: task_id=%d worker_id=%s", args.ID, args.WorkerID)
	return nil
}

func (s *Service) MapDone(args *WorkerArgs, reply *DoneReply) error {
	reply.Done = s.coord.MapDone()
	return nil
}

func (s *Service) GetReduceTask(args *WorkerArgs, reply *ReduceTaskReply) error {
	reply.Task, reply.Found = s.coord.GetReduceTask()
	if reply.Found {
		s.logger.Info("Reduce task assigned: partition=%d worker_id=%s", reply.Task.Partition, args.WorkerID)
	}
	return nil
}

func (s *Service) CompleteReduceTask(args *CompleteArgs, reply *CompleteReply) error {
	if err := s.coord.CompleteReduceTask(args.ID); err != nil {
		s.logger.Warn("Reduce completion rejected: partition=%d worker_id=%s err=%v", args.ID, args.WorkerID, err)
		return err
	}
	reply.Accepted = true
	s.logger.Info("Reduce task completed: partition=%d worker_id=%s", args.ID, args.WorkerID)
	return nil
}

func (s *Service) ReduceDone(args *WorkerArgs, reply *DoneReply) error {
	reply.Done = s.coord.ReduceDone()
	return nil
}
