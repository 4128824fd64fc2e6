package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vidqueue/internal/daemon"
	"vidqueue/internal/job"
	"vidqueue/internal/jobstore"
	"vidqueue/internal/logging"
	"vidqueue/internal/services"
)

// ServiceName is the RPC receiver name registered by the server.
const ServiceName = "VidQueue"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// request tags a call with a fresh correlation id.
func (s *service) request(op string) (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, s.logger).With(logging.String("rpc", op))
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	ctx, logger := s.request("add")
	snap, err := s.daemon.Submit(ctx, daemon.Submission{
		Path:  req.Path,
		Watch: req.Watch,
		Settings: job.Settings{
			Codec:      strings.TrimSpace(req.Codec),
			Container:  strings.TrimSpace(req.Container),
			VideoArgs:  req.VideoArgs,
			AudioCodec: strings.TrimSpace(req.AudioCodec),
			AudioArgs:  req.AudioArgs,
			OutputDir:  strings.TrimSpace(req.OutputDir),
			Trim:       job.TimeRange{Start: req.TrimStart, End: req.TrimEnd},
		},
	})
	if err != nil {
		logger.Info("job rejected",
			logging.String(logging.FieldEventType, "ipc_add_rejected"),
			logging.String("path", req.Path),
			logging.Error(err))
		return err
	}
	resp.Job = snap
	logger.Info("job submitted via IPC",
		logging.String(logging.FieldEventType, "ipc_add"),
		logging.String(logging.FieldJobID, snap.ID),
		logging.String("kind", string(snap.Kind)))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	wf := status.Workflow
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Mode = wf.Mode
	resp.Chunking = wf.Chunking
	resp.Active = wf.Active
	resp.Jobs = wf.Jobs
	resp.Queues = wf.Queues
	resp.Health = wf.Health
	resp.GateOwner = wf.GateOwner
	resp.Priority = wf.Priority
	resp.LastError = wf.LastError
	resp.History = status.History
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	return nil
}

func (s *service) Running(_ RunningRequest, resp *RunningResponse) error {
	resp.Jobs = s.daemon.RunningJobs()
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	records, err := s.daemon.History(s.ctx, jobstore.ListOptions{
		States:   req.States,
		ParentID: strings.TrimSpace(req.ParentID),
		Limit:    req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Jobs = records
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("job id is required")
	}
	record, err := s.daemon.Describe(s.ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("job %s not found", id)
	}
	resp.Job = *record
	return nil
}

func (s *service) ClearHistory(_ ClearHistoryRequest, resp *ClearHistoryResponse) error {
	ctx, logger := s.request("clear_history")
	removed, err := s.daemon.ClearHistory(ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	logger.Info("history cleared",
		logging.String(logging.FieldEventType, "history_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) Kill(_ KillRequest, resp *KillResponse) error {
	_, logger := s.request("kill")
	s.daemon.Kill()
	resp.Killed = true
	logger.Info("kill requested via IPC", logging.String(logging.FieldEventType, "ipc_kill"))
	return nil
}

func (s *service) StopJob(req JobRequest, resp *JobActionResponse) error {
	return s.jobAction("stop", req, resp, s.daemon.StopJob)
}

func (s *service) PauseJob(req JobRequest, resp *JobActionResponse) error {
	return s.jobAction("pause", req, resp, s.daemon.PauseJob)
}

func (s *service) ResumeJob(req JobRequest, resp *JobActionResponse) error {
	return s.jobAction("resume", req, resp, s.daemon.ResumeJob)
}

func (s *service) jobAction(op string, req JobRequest, resp *JobActionResponse, fn func(string) error) error {
	_, logger := s.request(op)
	resp.ID = req.ID
	if err := fn(req.ID); err != nil {
		return err
	}
	resp.OK = true
	logger.Info("job "+op+" requested via IPC",
		logging.String(logging.FieldEventType, "ipc_job_"+op),
		logging.String(logging.FieldJobID, req.ID))
	return nil
}

func (s *service) SetMode(req SetModeRequest, resp *SetModeResponse) error {
	if err := s.daemon.SetMode(req.Mode); err != nil {
		return err
	}
	resp.Mode = s.daemon.Status(s.ctx).Workflow.Mode
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	resp.Health = health
	return err
}
