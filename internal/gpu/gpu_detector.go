package gpu

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Backend names the acceleration the local recognizer can use
type Backend string

const (
	BackendNone  Backend = "none"
	BackendCUDA  Backend = "cuda"
	BackendMetal Backend = "metal"
)

// GPUInfo contains information about available GPU devices
type GPUInfo struct {
	Available     bool    `json:"available"`
	Backend       Backend `json:"backend"`
	DeviceCount   int     `json:"device_count"`
	DeviceName    string  `json:"device_name,omitempty"`
	CUDAVersion   string  `json:"cuda_version,omitempty"`
	DriverVersion string  `json:"driver_version,omitempty"`
}

// CommandRunner executes name with args and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector finds a GPU the local recognizer can offload to. The result of the first
// detection is cached for the lifetime of the Detector.
type Detector struct {
	logger       *zap.Logger
	run          CommandRunner
	getenv       func(string) string
	toolkitPaths []string
	goos         string

	once sync.Once
	info *GPUInfo
}

// Option configures a Detector
type Option func(*Detector)

// WithCommandRunner replaces the exec-based runner used for nvidia-smi
func WithCommandRunner(run CommandRunner) Option {
	return func(d *Detector) { d.run = run }
}

// WithEnv replaces os.Getenv
func WithEnv(getenv func(string) string) Option {
	return func(d *Detector) { d.getenv = getenv }
}

// WithToolkitPaths replaces the directories checked for a CUDA toolkit
func WithToolkitPaths(paths ...string) Option {
	return func(d *Detector) { d.toolkitPaths = paths }
}

// WithGOOS overrides the operating system used to decide on Metal support
func WithGOOS(goos string) Option {
	return func(d *Detector) { d.goos = goos }
}

// NewDetector creates a new GPU detector instance
func NewDetector(logger *zap.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		logger:       logger,
		run:          execRunner,
		getenv:       os.Getenv,
		toolkitPaths: []string{"/usr/local/cuda", "/opt/cuda", "/usr/cuda"},
		goos:         runtime.GOOS,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the GPU information, probing on the first call only
func (d *Detector) Detect(ctx context.Context) *GPUInfo {
	d.once.Do(func() {
		d.info = d.detect(ctx)
		d.logger.Info("GPU detection completed",
			zap.Bool("available", d.info.Available),
			zap.String("backend", string(d.info.Backend)),
			zap.Int("device_count", d.info.DeviceCount),
			zap.String("device_name", d.info.DeviceName))
	})
	copied := *d.info
	return &copied
}

// IsAvailable reports whether any GPU backend was detected
func (d *Detector) IsAvailable(ctx context.Context) bool {
	return d.Detect(ctx).Available
}

func (d *Detector) detect(ctx context.Context) *GPUInfo {
	info := &GPUInfo{Backend: BackendNone}

	// whisper.cpp builds for Apple platforms offload to Metal
	if d.goos == "darwin" {
		info.Available = true
		info.Backend = BackendMetal
		info.DeviceCount = 1
		return info
	}

	err := d.detectWithNvidiaSMI(ctx, info)
	if err == nil {
		return info
	}
	d.logger.Debug("nvidia-smi detection failed", zap.Error(err))

	if err = d.detectWithCUDAEnv(info); err == nil {
		return info
	}
	d.logger.Debug("CUDA environment detection failed", zap.Error(err))

	if err := d.detectWithCUDAToolkit(info); err != nil {
		d.logger.Debug("CUDA toolkit detection failed", zap.Error(err))
	}
	return info
}

func (d *Detector) detectWithNvidiaSMI(ctx context.Context, info *GPUInfo) error {
	countOutput, err := d.run(ctx, "nvidia-smi", "--list-gpus")
	if err != nil {
		return fmt.Errorf("nvidia-smi command failed: %w", err)
	}

	var devices int
	for _, line := range strings.Split(strings.TrimSpace(string(countOutput)), "\n") {
		if strings.TrimSpace(line) != "" {
			devices++
		}
	}
	if devices == 0 {
		return fmt.Errorf("no GPUs found by nvidia-smi")
	}

	infoOutput, err := d.run(ctx, "nvidia-smi", "--query-gpu=name,driver_version", "--format=csv,noheader,nounits", "--id=0")
	if err != nil {
		return fmt.Errorf("nvidia-smi info query failed: %w", err)
	}

	first := strings.SplitN(strings.TrimSpace(string(infoOutput)), "\n", 2)[0]
	parts := strings.Split(first, ",")
	if len(parts) < 2 {
		return fmt.Errorf("unexpected nvidia-smi info format: %s", first)
	}

	info.Available = true
	info.Backend = BackendCUDA
	info.DeviceCount = devices
	info.DeviceName = strings.TrimSpace(parts[0])
	info.DriverVersion = strings.TrimSpace(parts[1])
	info.CUDAVersion = d.getenv("CUDA_VERSION")
	return nil
}

func (d *Detector) detectWithCUDAEnv(info *GPUInfo) error {
	cudaVersion := d.getenv("CUDA_VERSION")
	visibleDevices := d.getenv("CUDA_VISIBLE_DEVICES")

	if visibleDevices == "" {
		return fmt.Errorf("CUDA_VISIBLE_DEVICES not set")
	}
	if visibleDevices == "-1" {
		return nil
	}

	info.DeviceCount = len(strings.Split(visibleDevices, ","))
	info.Available = info.DeviceCount > 0
	info.Backend = BackendCUDA
	info.CUDAVersion = cudaVersion
	return nil
}

func (d *Detector) detectWithCUDAToolkit(info *GPUInfo) error {
	for _, path := range d.toolkitPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		info.Available = true
		info.Backend = BackendCUDA
		info.DeviceCount = 1

		versionData, err := os.ReadFile(filepath.Join(path, "version.txt"))
		if err != nil {
			return nil
		}
		for _, line := range strings.Split(string(versionData), "\n") {
			if fields := strings.Fields(line); len(fields) >= 3 && strings.Contains(line, "CUDA Version") {
				info.CUDAVersion = fields[2]
				break
			}
		}
		return nil
	}

	return fmt.Errorf("CUDA toolkit not found in standard locations")
}
