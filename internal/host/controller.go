// Package host implements the Host Controller: the non-realtime state
// machine that wires every other component together, drives plugin
// lifecycle, and owns shutdown.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lv2jack/host/internal/audioserver/malgo"
	"github.com/lv2jack/host/internal/conf"
	"github.com/lv2jack/host/internal/errors"
	"github.com/lv2jack/host/internal/features"
	"github.com/lv2jack/host/internal/logging"
	"github.com/lv2jack/host/internal/metrics"
	"github.com/lv2jack/host/internal/plugin"
	"github.com/lv2jack/host/internal/plugindb"
	"github.com/lv2jack/host/internal/ports"
	"github.com/lv2jack/host/internal/process"
	"github.com/lv2jack/host/internal/ringbuf"
	"github.com/lv2jack/host/internal/telemetry"
	"github.com/lv2jack/host/internal/urid"
	"github.com/lv2jack/host/internal/worker"
)

// ControlOverride is one CLI `-c SYM=VAL` override applied to a
// control-scalar input port before activation.
type ControlOverride struct {
	Symbol string
	Value  float32
}

// Options carries the subset of conf.Settings plus CLI-only values (plugin
// URI, control overrides) a run needs; the root command builds this from
// cobra flags layered over the Settings loaded by conf.Load.
type Options struct {
	PluginURI        string
	Name             string
	ExactName        bool
	SessionUUID      string
	StatePath        string
	StateLoadOnly    bool
	PresetURI        string
	ControlOverrides []ControlOverride
	PrintControls    bool
	DumpEvents       bool
	Trace            bool
	Settings         *conf.Settings
}

// Controller is the single-threaded, non-realtime lifecycle owner. Every
// exported method except Run's internal ticker callbacks is expected to be
// called from a single goroutine (main).
type Controller struct {
	opts Options
	log  *slog.Logger

	table   *urid.Table
	cache   urid.Cache
	descr   *plugindb.PluginDescriptor
	portTbl *ports.Table
	feats   *features.Registry
	inst    plugin.Instance
	w       *worker.Worker
	cycle   *process.Cycle
	backend *malgo.Backend
	mcol    *metrics.Collector

	uiToPlugin *ringbuf.Channel
	pluginToUI *ringbuf.Channel

	tempDir    string
	traceLog   *slog.Logger
	traceClose func() error

	active atomic.Bool

	exitSem  chan struct{}
	exitOnce sync.Once

	metricsCtx    context.Context
	metricsCancel context.CancelFunc
}

// New builds a Controller; nothing is allocated or opened until Run.
func New(opts Options) *Controller {
	if opts.Settings == nil {
		opts.Settings = conf.Setting()
	}
	log := logging.ForService("host")
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		opts:    opts,
		log:     log,
		table:   urid.NewTable(),
		exitSem: make(chan struct{}, 1),
	}
}

// Run executes the full lifecycle described by the host controller's state
// machine: setup, activation, the UI ticker loop, and shutdown. It returns
// a non-zero-worthy error on any fatal setup failure; the caller maps that
// to a process exit code.
func (c *Controller) Run(ctx context.Context) error {
	if err := telemetry.Init(telemetry.Config{
		Enabled: c.opts.Settings.Telemetry.Enabled,
		DSN:     c.opts.Settings.Telemetry.DSN,
	}); err != nil {
		c.log.Warn("telemetry init failed, continuing without it", "error", err)
	}
	defer telemetry.Flush(2 * time.Second)

	if err := c.setup(); err != nil {
		telemetry.ReportSetupFailure(err)
		c.cleanupSetupFailure()
		return err
	}

	c.installSignalHandler()

	if err := c.activate(); err != nil {
		telemetry.ReportSetupFailure(err)
		c.shutdown()
		return err
	}

	c.runUILoop(ctx)
	c.shutdown()
	return nil
}

// setup performs everything up to (but not including) activation:
// discover, build ports, open the audio server, size rings/buffers,
// instantiate, apply state and overrides.
func (c *Controller) setup() error {
	if c.opts.PluginURI == "" {
		return errors.New(nil).
			Component("host").
			Category(errors.CategoryHostState).
			Context("reason", "no plugin URI given").
			Build()
	}

	desc, err := plugindb.Lookup(c.opts.PluginURI, c.opts.Settings.Plugin.SearchDir)
	if err != nil {
		return err
	}
	c.descr = desc

	// Plugin-requested state files land here unless a persistent state path
	// was given; removed again at shutdown.
	tempDir, err := os.MkdirTemp("", "lv2jack-")
	if err != nil {
		return errors.New(err).
			Component("host").
			Category(errors.CategoryFileIO).
			Context("reason", "creating temporary state directory").
			Build()
	}
	c.tempDir = tempDir

	if c.opts.Trace {
		traceLevel := new(slog.LevelVar)
		traceLevel.Set(slog.LevelDebug)
		traceLog, closeFn, err := logging.NewFileLogger("logs/trace.log", "plugin-trace", traceLevel)
		if err != nil {
			c.log.Warn("plugin trace log unavailable, tracing to main log", "error", err)
		} else {
			c.traceLog = traceLog
			c.traceClose = closeFn
		}
	}

	c.cache = urid.NewCache(c.table)

	midiBufferSize := uint32(4096)
	portTbl, err := ports.Build(desc.Ports, midiBufferSize)
	if err != nil {
		return err
	}
	c.portTbl = portTbl

	var audioIn, audioOut uint32
	for _, p := range portTbl.All() {
		if p.Kind != plugindb.KindAudio {
			continue
		}
		if p.Flow == plugindb.FlowOutput {
			audioOut++
		} else {
			audioIn++
		}
	}

	c.backend = malgo.New(malgo.Config{
		DeviceName:     c.opts.Settings.Audio.Device,
		SampleRate:     c.opts.Settings.Audio.SampleRate,
		BufferFrames:   c.opts.Settings.Audio.BufferFrames,
		InputChannels:  audioIn,
		OutputChannels: audioOut,
	})
	for i, p := range portTbl.All() {
		switch p.Kind {
		case plugindb.KindAudio:
			c.backend.BindAudioPort(i, p.Flow == plugindb.FlowOutput)
		case plugindb.KindEvent:
			c.backend.BindMIDIPort(i, p.Flow == plugindb.FlowOutput)
		}
	}
	if err := c.backend.Open(); err != nil {
		return err
	}

	ports.AllocateEventBuffers(portTbl, c.cache.AtomChunk, c.cache.AtomSequence, midiBufferSize)

	uiRingBytes := int(portTbl.RequiredUIBufferSize())
	if uiRingBytes == 0 {
		uiRingBytes = int(midiBufferSize) * 16
	}
	if c.opts.Settings.UI.RingBytes > 0 {
		uiRingBytes = int(c.opts.Settings.UI.RingBytes)
	}
	c.uiToPlugin = ringbuf.NewChannel(uiRingBytes)
	c.pluginToUI = ringbuf.NewChannel(uiRingBytes)

	c.w = worker.New(worker.Interface{}, worker.Config{
		Enabled:            true,
		QueueCapacityBytes: c.opts.Settings.Worker.QueueCapacity * 1024,
	})

	stateDir := c.opts.Settings.State.Path
	if stateDir == "" {
		stateDir = c.tempDir
	}
	c.feats = features.Build(features.Config{
		Table:  c.table,
		Worker: c.w,
		MakePath: func(rel string) (string, error) {
			return plugindb.MakePath(stateDir, rel)
		},
		Log: func(severity, msg string) {
			if c.traceLog != nil {
				c.traceLog.Debug(msg, "severity", severity, "plugin", c.descr.URI)
				return
			}
			c.log.Info(msg, "severity", severity, "plugin", c.descr.URI)
		},
		Options: features.Options{
			SampleRate:      float32(c.opts.Settings.Audio.SampleRate),
			MinimumBlockLen: 1,
			MaximumBlockLen: int32(c.opts.Settings.Audio.BufferFrames),
			SequenceSize:    int32(midiBufferSize),
			UIUpdateRate:    float32(c.opts.Settings.UI.UpdateRateHz),
		},
		BufSizeGuarantee: "bounded",
	})

	inst, err := plugin.Instantiate(plugin.FactoryArgs{
		Descriptor: *desc,
		Ports:      portTbl,
		Cache:      c.cache,
		Features:   c.feats,
		SampleRate: float64(c.opts.Settings.Audio.SampleRate),
	})
	if err != nil {
		return err
	}
	c.inst = inst

	if we, ok := inst.(plugin.WorkerExtension); ok {
		c.w.BindInterface(we.WorkerInterface())
	}

	if err := c.applyState(); err != nil {
		return err
	}
	if c.opts.PresetURI != "" {
		if err := c.ApplyPreset(c.opts.PresetURI); err != nil {
			return err
		}
	}
	c.applyControlOverrides()

	c.cycle = process.New(process.Config{
		Ports:      portTbl,
		Cache:      c.cache,
		UIToPlugin: c.uiToPlugin,
		PluginToUI: c.pluginToUI,
		Worker:     c.w,
		Plugin:     c.inst,
		Server:     c.backend,
		SampleRate: float64(c.opts.Settings.Audio.SampleRate),
		UIUpdateHz: c.opts.Settings.UI.UpdateRateHz,
	})
	c.cycle.Prepare(c.opts.Settings.Audio.BufferFrames, midiBufferSize)
	c.backend.SetCallback(c.cycle.Run)

	c.mcol = metrics.New(c.opts.Settings.Metrics.Enabled)
	if c.opts.Settings.Metrics.Enabled {
		go c.serveMetrics()
	}
	c.metricsCtx, c.metricsCancel = context.WithCancel(context.Background())
	c.mcol.Start(c.metricsCtx, time.Second, func() metrics.Sample {
		depth := 0
		if c.w != nil {
			depth = c.w.RequestQueueDepth()
		}
		return metrics.Sample{
			UIToPluginOverflow: c.uiToPlugin.OverflowCount(),
			PluginToUIOverflow: c.pluginToUI.OverflowCount(),
			WorkerQueueDepth:   depth,
		}
	})

	return nil
}

func (c *Controller) applyState() error {
	if c.opts.StatePath == "" {
		return nil
	}
	saved, err := plugindb.LoadState(c.opts.StatePath)
	if err != nil {
		return err
	}
	if saved == nil || c.opts.StateLoadOnly {
		return nil
	}
	if se, ok := c.inst.(plugin.StateExtension); ok {
		return se.Restore(saved.Controls)
	}
	return nil
}

func (c *Controller) applyControlOverrides() {
	for _, ov := range c.opts.ControlOverrides {
		for i, p := range c.portTbl.All() {
			if p.Symbol == ov.Symbol && p.Kind == plugindb.KindControlScalar {
				c.portTbl.Classify(i).ScalarValue = ov.Value
			}
		}
	}
}

func (c *Controller) serveMetrics() {
	srv := &http.Server{Addr: c.opts.Settings.Metrics.Listen, Handler: c.mcol.Handler()}
	if err := srv.ListenAndServe(); err != nil {
		c.log.Warn("metrics server stopped", "error", err)
	}
}

// activate starts the worker, process, and audio backend, in that order.
func (c *Controller) activate() error {
	c.inst.Activate()
	c.w.Start(context.Background())
	if err := c.backend.Start(); err != nil {
		return err
	}
	c.active.Store(true)
	c.log.Info("plugin active",
		"uri", c.descr.URI,
		"name", c.opts.Name,
		"exact_name", c.opts.ExactName,
		"session", c.opts.SessionUUID)
	return nil
}

// ApplyPreset applies the named preset from the plugin's database entry.
// Before activation it writes control values directly; while the audio
// stream is running it pauses the process cycle first, applies the preset,
// resumes, and asks the next cycle to emit a patch-get so the plugin
// re-announces its state to the UI.
func (c *Controller) ApplyPreset(uri string) error {
	preset := c.descr.FindPreset(uri)
	if preset == nil {
		return errors.New(nil).
			Component("host").
			Category(errors.CategoryHostState).
			Context("preset", uri).
			Context("reason", "preset not found in plugin database entry").
			Build()
	}

	running := c.active.Load()
	if running {
		c.cycle.RequestPause()
		c.cycle.WaitPaused()
	}

	for symbol, value := range preset.Controls {
		for i, p := range c.portTbl.All() {
			if p.Symbol == symbol && p.Kind == plugindb.KindControlScalar {
				c.portTbl.Classify(i).ScalarValue = value
			}
		}
	}
	if se, ok := c.inst.(plugin.StateExtension); ok {
		if err := se.Restore(preset.Controls); err != nil {
			c.log.Warn("plugin rejected preset state", "preset", uri, "error", err)
		}
	}

	if running {
		c.cycle.RequestStateChange()
		c.cycle.RequestResume()
	}

	c.log.Info("applied preset", "preset", preset.Name, "uri", uri)
	return nil
}

// SetControl writes one scalar control change into the UI->plugin ring, as
// the control surface's widget callbacks would. Non-realtime callers only.
func (c *Controller) SetControl(symbol string, value float32) error {
	for i, p := range c.portTbl.All() {
		if p.Symbol != symbol {
			continue
		}
		if p.Kind != plugindb.KindControlScalar || p.Flow != plugindb.FlowInput {
			return errors.New(nil).
				Component("host").
				Category(errors.CategoryValidation).
				Context("symbol", symbol).
				Context("reason", "not a scalar control input").
				Build()
		}
		record := process.EncodeControlChange(nil, uint32(i), 0, process.ScalarPayload(value))
		if !c.uiToPlugin.WriteRecord(record) {
			return errors.New(nil).
				Component("host").
				Category(errors.CategoryRing).
				Context("symbol", symbol).
				Context("reason", "UI ring full, control change dropped").
				Build()
		}
		return nil
	}
	return errors.New(nil).
		Component("host").
		Category(errors.CategoryValidation).
		Context("symbol", symbol).
		Context("reason", "no such port").
		Build()
}

func (c *Controller) installSignalHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		c.postExit()
	}()
}

func (c *Controller) postExit() {
	c.exitOnce.Do(func() {
		c.exitSem <- struct{}{}
	})
}

// runUILoop is the periodic UI-update driver: drains the plugin->UI ring on
// a ticker until the exit semaphore is posted.
func (c *Controller) runUILoop(ctx context.Context) {
	hz := c.opts.Settings.UI.UpdateRateHz
	if hz <= 0 {
		hz = 25
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()

	go c.runConsole(ctx.Done())

	last := time.Now()
	for {
		select {
		case <-c.exitSem:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.mcol.RecordUIUpdate(now.Sub(last))
			last = now
			c.drainToConsole()
		}
	}
}

func (c *Controller) drainToConsole() {
	scratch := make([]byte, 4096)
	for {
		n, ok := c.pluginToUI.ReadRecord(scratch)
		if !ok {
			return
		}
		if !c.opts.PrintControls && !c.opts.DumpEvents {
			continue
		}

		portIndex, protocol, payload, ok := process.DecodeControlChange(scratch[:n])
		if !ok {
			c.log.Debug("malformed control update from plugin", "bytes", n)
			continue
		}
		if int(portIndex) >= c.portTbl.Len() {
			c.log.Debug("control update targets unknown port", "port_index", portIndex)
			continue
		}
		symbol := c.portTbl.Classify(int(portIndex)).Symbol

		switch {
		case protocol == 0:
			if !c.opts.PrintControls {
				continue
			}
			value, ok := process.ScalarFromPayload(payload)
			if !ok {
				c.log.Debug("malformed scalar control update", "port", symbol)
				continue
			}
			fmt.Printf("%s = %f\n", symbol, value)
		default:
			if c.opts.DumpEvents {
				fmt.Printf("%s: % x\n", symbol, payload)
			} else if c.opts.PrintControls {
				fmt.Printf("%s = <%d bytes, protocol %d>\n", symbol, len(payload), protocol)
			}
		}
	}
}

// cleanupSetupFailure releases the few resources setup acquires before any
// component exists to own them; full teardown is shutdown's job and needs
// a completed setup.
func (c *Controller) cleanupSetupFailure() {
	if c.traceClose != nil {
		_ = c.traceClose()
	}
	if c.tempDir != "" {
		_ = os.RemoveAll(c.tempDir)
	}
}

// shutdown tears everything down in the reverse order it was built: join
// worker, deactivate/close audio server, deactivate/free plugin, stop
// metrics, persist state.
func (c *Controller) shutdown() {
	c.log.Info("shutting down")
	c.active.Store(false)

	c.w.Stop()
	_ = c.backend.Stop()
	c.backend.Close()
	c.inst.Deactivate()

	if c.metricsCancel != nil {
		c.metricsCancel()
	}
	c.mcol.Stop()

	c.saveState()

	if c.traceClose != nil {
		_ = c.traceClose()
	}
	if c.tempDir != "" {
		if err := os.RemoveAll(c.tempDir); err != nil {
			c.log.Warn("removing temporary state directory failed", "dir", c.tempDir, "error", err)
		}
	}
}

func (c *Controller) saveState() {
	if c.opts.StatePath == "" {
		return
	}
	se, ok := c.inst.(plugin.StateExtension)
	if !ok {
		return
	}
	controls, err := se.Save()
	if err != nil {
		c.log.Warn("plugin state save failed", "error", err)
		return
	}
	s := &plugindb.SavedState{PluginURI: c.descr.URI, Controls: controls}
	if err := plugindb.SaveState(c.opts.StatePath, s); err != nil {
		c.log.Warn("writing state failed", "error", err)
	}
}
