package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"butler/internal/daemon"
	"butler/internal/logging"
	"butler/internal/logs"
	"butler/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
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
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Butler", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
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
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun butler stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func runSummary(run store.RunLog) RunSummary {
	return RunSummary{
		ID:             run.ID,
		ParentRunID:    run.ParentRunID,
		RuleID:         run.RuleID,
		RuleName:       run.RuleName,
		ExecutionOrder: run.ExecutionOrder,
		StartTime:      run.StartTime,
		EndTime:        run.EndTime,
		Status:         string(run.Status),
		Matched:        run.Matched,
		Eligible:       run.Eligible,
		Succeeded:      run.Succeeded,
		Failed:         run.Failed,
		Summary:        run.Summary,
	}
}

func batchResponse(report daemon.BatchReport) BatchResponse {
	return BatchResponse{
		ParentRunID: report.ParentRunID,
		Scope:       report.Scope,
		Results:     report.Results,
		Totals:      report.Totals,
	}
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("scheduler start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "scheduler started"
	s.log().Info("scheduler started via IPC",
		logging.String(logging.FieldEventType, "scheduler_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("scheduler stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("scheduler stopped via IPC",
		logging.String(logging.FieldEventType, "scheduler_stop"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("daemon shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	s.daemon.RequestShutdown()
	resp.Initiated = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Scheduler = status.Scheduler
	resp.Counts = ContentCounts{
		Rules:        status.Counts.Rules,
		Sets:         status.Counts.Sets,
		Runs:         status.Counts.Runs,
		FileEvents:   status.Counts.FileEvents,
		TrackedFiles: status.Counts.TrackedFiles,
	}
	resp.DatabasePath = status.DatabasePath
	resp.RulesPath = status.RulesPath
	resp.LockPath = status.LockPath
	resp.LogPath = status.LogPath
	resp.HydrusOK = status.HydrusOK
	resp.HydrusDetail = status.HydrusDetail
	return nil
}

func (s *service) RunRule(req RunRuleRequest, resp *RunRuleResponse) error {
	if req.Rule == "" {
		return errors.New("run rule requires a rule id or name")
	}
	s.log().Debug("manual rule run requested", logging.String("rule", req.Rule))
	result, err := s.daemon.RunRule(s.ctx, req.Rule, req.Deep, req.BypassOverride)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) RunAll(_ RunAllRequest, resp *BatchResponse) error {
	s.log().Debug("manual all-rules run requested")
	report, err := s.daemon.RunAll(s.ctx)
	if err != nil {
		return err
	}
	*resp = batchResponse(report)
	return nil
}

func (s *service) RunSet(req RunSetRequest, resp *BatchResponse) error {
	if req.Set == "" {
		return errors.New("run set requires a set id or name")
	}
	s.log().Debug("manual set run requested", logging.String("set", req.Set))
	report, err := s.daemon.RunSet(s.ctx, req.Set)
	if err != nil {
		return err
	}
	*resp = batchResponse(report)
	return nil
}

func (s *service) Estimate(req EstimateRequest, resp *EstimateResponse) error {
	if req.Rule == "" {
		return errors.New("estimate requires a rule id or name")
	}
	estimate, err := s.daemon.Estimate(s.ctx, req.Rule, req.Deep, req.BypassOverride)
	if err != nil {
		return err
	}
	resp.Estimate = estimate
	return nil
}

func (s *service) Rules(_ RulesRequest, resp *RulesResponse) error {
	list, err := s.daemon.Rules(s.ctx)
	if err != nil {
		return err
	}
	resp.Rules = list
	return nil
}

func (s *service) Sets(_ SetsRequest, resp *SetsResponse) error {
	sets, err := s.daemon.Sets(s.ctx)
	if err != nil {
		return err
	}
	resp.Sets = sets
	return nil
}

func (s *service) Services(_ ServicesRequest, resp *ServicesResponse) error {
	catalog, err := s.daemon.Services(s.ctx)
	if err != nil {
		return err
	}
	resp.Services = catalog.Services()
	return nil
}

func (s *service) SearchRuns(req RunSearchRequest, resp *RunSearchResponse) error {
	search := store.RunSearch{
		Text:   req.Text,
		SortBy: req.SortBy,
		Limit:  req.Limit,
		Offset: req.Offset,
		Frame:  store.ParseTimeFrame(req.Frame, time.Now()),
	}
	if req.Rule != "" {
		// Resolve the ident to an id when it names a known rule;
		// otherwise fall back to a name substring match.
		search.RuleName = req.Rule
		if list, err := s.daemon.Rules(s.ctx); err == nil {
			for _, rule := range list {
				if rule.ID == req.Rule || strings.EqualFold(rule.Name, req.Rule) {
					search.RuleID = rule.ID
					search.RuleName = ""
					break
				}
			}
		}
	}
	if req.Status != "" {
		search.Status = store.RunStatus(req.Status)
	}
	runs, total, err := s.daemon.SearchRuns(s.ctx, search)
	if err != nil {
		return err
	}
	resp.Runs = make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		resp.Runs = append(resp.Runs, runSummary(run))
	}
	resp.Total = total
	return nil
}

func (s *service) RunDetails(req RunDetailsRequest, resp *RunDetailsResponse) error {
	if req.RunID == "" {
		return errors.New("run details requires a run id")
	}
	run, events, err := s.daemon.RunDetails(s.ctx, req.RunID)
	if err != nil {
		return err
	}
	resp.Run = runSummary(*run)
	resp.Events = make([]FileEventSummary, 0, len(events))
	for _, event := range events {
		resp.Events = append(resp.Events, FileEventSummary{
			FileHash: event.FileHash,
			Status:   event.Status,
			Details:  event.Details,
			Message:  event.Message,
		})
	}
	return nil
}

func (s *service) FileLookup(req FileLookupRequest, resp *FileLookupResponse) error {
	if req.Hash == "" {
		return errors.New("file lookup requires a file hash")
	}
	record, history, err := s.daemon.FileLookup(s.ctx, req.Hash)
	if err != nil {
		return err
	}
	resp.Tracked = record != nil
	resp.Governance = record
	resp.History = make([]FileHistoryEvent, 0, len(history))
	for _, entry := range history {
		resp.History = append(resp.History, FileHistoryEvent{
			RunLogID:  entry.RunLogID,
			RuleID:    entry.RuleID,
			RuleName:  entry.RuleName,
			StartTime: entry.StartTime,
			Status:    entry.Status,
			Details:   entry.Details,
			Message:   entry.Message,
		})
	}
	return nil
}

func (s *service) RuleStats(req RuleStatsRequest, resp *RuleStatsResponse) error {
	if req.Rule == "" {
		return errors.New("rule stats requires a rule id or name")
	}
	rule, stats, err := s.daemon.RuleStats(s.ctx, req.Rule)
	if err != nil {
		return err
	}
	resp.Rule = rule
	resp.TotalRuns = stats.TotalRuns
	resp.CompletedRuns = stats.CompletedRuns
	resp.FilesProcessed = stats.FilesProcessed
	resp.LastRun = stats.LastRun
	return nil
}

func (s *service) PruneLogs(_ PruneLogsRequest, resp *PruneLogsResponse) error {
	s.log().Debug("log prune requested")
	removed, err := s.daemon.PruneLogs(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("duplicate file events pruned",
		logging.String(logging.FieldEventType, "logs_pruned"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
