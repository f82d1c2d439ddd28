package zbd

import (
	"sync"

	"github.com/google/uuid"

	"github.com/zbdcore/zbdadapt/internal/constants"
	"github.com/zbdcore/zbdadapt/internal/interfaces"
	"github.com/zbdcore/zbdadapt/internal/logging"
)

// FileConfig describes one file's I/O range and the already-opened
// device backing it (§6 caller-facing API: device discovery/opening is
// the caller's responsibility, this core only consumes an
// interfaces.Device).
type FileConfig struct {
	Path               string
	DeviceKey          string // identity for table sharing; defaults to Path
	Device             interfaces.Device
	Offset             uint64
	Size               uint64
	Writes             bool
	Verify             bool
	ODirect            bool
	MinBlockBytes      uint64
	ConfiguredZoneSize uint64 // bytes; required when Device reports ModelNone
}

// JobConfig collects the options recognized at §6: zone_mode must equal
// "zbd" to enable this core at all.
type JobConfig struct {
	ZoneMode     string
	ReadBeyondWP bool
	MaxOpenZones int
	Files        []FileConfig
}

// ZoneTableRegistry dedups ZoneTable construction by device identity
// (§3 SUPPLEMENTED FEATURES: zbd_init_zone_info's idempotency guard):
// a file sharing a device with an already-initialized file gets the
// existing table with its refcount bumped instead of a fresh report.
type ZoneTableRegistry struct {
	mu     sync.Mutex
	tables map[string]*ZoneTable
}

// NewZoneTableRegistry builds an empty registry.
func NewZoneTableRegistry() *ZoneTableRegistry {
	return &ZoneTableRegistry{tables: make(map[string]*ZoneTable)}
}

func (r *ZoneTableRegistry) acquire(key string, dev interfaces.Device, configuredZoneSize uint64) (*ZoneTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tables[key]; ok {
		t.RefIncrement()
		return t, nil
	}
	t, err := BuildZoneTable(dev, configuredZoneSize)
	if err != nil {
		return nil, err
	}
	r.tables[key] = t
	return t, nil
}

func (r *ZoneTableRegistry) release(key string, t *ZoneTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.RefDecrement() {
		delete(r.tables, key)
	}
}

// jobFile bundles one file's zone range with the per-file components
// that operate on it.
type jobFile struct {
	cfg      FileConfig
	key      string
	table    *ZoneTable
	fr       *FileRange
	reset    *ResetEngine
	adjuster *Adjuster
	complete *CompletionHook
}

// Job is the caller-facing handle for one workload run against a set of
// files (§6). Job.RunID correlates this run's log lines.
type Job struct {
	RunID string

	cfg      JobConfig
	registry *ZoneTableRegistry
	quiesce  func()
	obs      interfaces.Observer

	files []*jobFile
}

// NewJob builds a Job. quiesce is the caller's drain-in-flight-I/O hook
// (§5); obs may be nil.
func NewJob(cfg JobConfig, quiesce func(), obs interfaces.Observer) *Job {
	return &Job{
		RunID:    uuid.New().String(),
		cfg:      cfg,
		registry: NewZoneTableRegistry(),
		quiesce:  quiesce,
		obs:      obs,
	}
}

// Init implements init(job) (§6): builds or shares a ZoneTable for every
// configured file and runs the Configuration Validator. Idempotent: a
// second call on an already-initialized Job is a no-op. If ZoneMode
// isn't "zbd" this core stays disabled and Init does nothing.
func (j *Job) Init() error {
	if j.cfg.ZoneMode != "zbd" {
		return nil
	}
	if j.files != nil {
		return nil
	}

	files := make([]*jobFile, 0, len(j.cfg.Files))
	ranges := make([]*FileRange, 0, len(j.cfg.Files))

	for i := range j.cfg.Files {
		fc := j.cfg.Files[i]
		key := fc.DeviceKey
		if key == "" {
			key = fc.Path
		}

		table, err := j.registry.acquire(key, fc.Device, fc.ConfiguredZoneSize)
		if err != nil {
			return err
		}

		fr := &FileRange{
			Table:      table,
			Offset:     fc.Offset,
			Size:       fc.Size,
			Writes:     fc.Writes,
			HostMgd:    table.Model() == ModelHostManaged,
			ODirect:    fc.ODirect,
			Verify:     fc.Verify,
			MinBlockSz: fc.MinBlockBytes,
		}

		resetEngine := NewResetEngine(fc.Device, table, j.obs)
		jf := &jobFile{
			cfg:      fc,
			key:      key,
			table:    table,
			fr:       fr,
			reset:    resetEngine,
			adjuster: NewAdjuster(resetEngine, j.quiesce, j.obs),
			complete: NewCompletionHook(j.obs),
		}
		files = append(files, jf)
		ranges = append(ranges, fr)
	}

	if err := ValidateConfig(ranges); err != nil {
		for _, jf := range files {
			j.registry.release(jf.key, jf.table)
		}
		return err
	}

	j.files = files
	logging.Info("job initialized", "run", j.RunID, "files", len(j.files))
	return nil
}

// FileReset implements file_reset(job, file) (§6).
func (j *Job) FileReset(fileIdx int, verifyingNow bool) error {
	jf := j.files[fileIdx]
	minBlockSectors := jf.cfg.MinBlockBytes >> constants.SectorShift
	return jf.reset.FileReset(jf.fr, jf.cfg.Verify, jf.cfg.Writes, verifyingNow, minBlockSectors)
}

// AdjustBlock implements adjust_block(job, io_unit) (§6).
func (j *Job) AdjustBlock(fileIdx int, io *IOUnit, verifying bool) *AdjustResult {
	jf := j.files[fileIdx]
	cfg := AdjustConfig{
		ReadBeyondWP:  j.cfg.ReadBeyondWP,
		Verifying:     verifying,
		MinBlockBytes: jf.cfg.MinBlockBytes,
		MaxOpenZones:  j.cfg.MaxOpenZones,
	}
	return jf.adjuster.Adjust(jf.fr, io, cfg)
}

// CompleteBlock runs the Completion Hook for a reservation Adjust
// produced (§4.6).
func (j *Job) CompleteBlock(fileIdx int, r *Reservation, dir Direction, offset, buflen uint64, success bool) {
	jf := j.files[fileIdx]
	jf.complete.Complete(jf.table, r, dir, offset, buflen, success)
}

// FreeZoneInfo implements free_zone_info(file) (§6): decrements the
// table's refcount, dropping it from the registry on last release.
func (j *Job) FreeZoneInfo(fileIdx int) {
	jf := j.files[fileIdx]
	j.registry.release(jf.key, jf.table)
}

// Table returns the ZoneTable backing a configured file, for callers
// that need direct zone inspection (e.g. cmd/zbdctl).
func (j *Job) Table(fileIdx int) *ZoneTable {
	return j.files[fileIdx].table
}
