package recording

import (
	"fmt"

	"github.com/sarchlab/pl8sim/bus"
	"github.com/sarchlab/pl8sim/pl8"
	"github.com/sarchlab/pl8sim/sim"
)

// Table names used by the Tracer.
const (
	TableActivity = "activity"
	TableDrain    = "drain"
	TableTake     = "take"
	TableCommit   = "pipeline_commit"
	TableBusCycle = "bus_cycle"
)

// ActivityEntry is one access event consumed by the aggregator.
type ActivityEntry struct {
	ID        string
	Time      float64
	Register  int
	Direction string
}

// DrainEntry is one run of the aggregator.
type DrainEntry struct {
	ID     string
	Time   float64
	Events uint64
}

// TakeEntry is one clearing query.
type TakeEntry struct {
	ID        string
	Time      float64
	Direction string
	Bits      uint32
}

// CommitEntry is one transaction served by a pipeline.
type CommitEntry struct {
	ID       string
	Time     float64
	Pipeline string
	Register int
	Data     int
}

// BusCycleEntry is one bus cycle seen by the master.
type BusCycleEntry struct {
	ID       string
	Time     float64
	Op       string
	Register int
	Value    int
}

// A Tracer turns bridge, pipeline and bus hooks into table rows.
type Tracer struct {
	recorder Recorder
	time     sim.TimeTeller
}

// NewTracer creates the tables the tracer writes to. The time teller
// timestamps events whose hook carries no time.
func NewTracer(recorder Recorder, time sim.TimeTeller) (*Tracer, error) {
	t := &Tracer{recorder: recorder, time: time}

	tables := []struct {
		name   string
		sample any
	}{
		{TableActivity, ActivityEntry{}},
		{TableDrain, DrainEntry{}},
		{TableTake, TakeEntry{}},
		{TableCommit, CommitEntry{}},
		{TableBusCycle, BusCycleEntry{}},
	}

	for _, tbl := range tables {
		if err := recorder.CreateTable(tbl.name, tbl.sample); err != nil {
			return nil, fmt.Errorf("tracer: %w", err)
		}
	}

	return t, nil
}

// TraceBridge records the aggregator and query activity of a bridge, and the
// commits of both of its pipelines.
func (t *Tracer) TraceBridge(b *pl8.Bridge) {
	b.AcceptHook(t)
	b.WritePipeline().AcceptHook(t)
	b.ReadPipeline().AcceptHook(t)
}

// TraceMaster records every completed bus cycle of a master.
func (t *Tracer) TraceMaster(m *bus.Master) {
	m.AcceptHook(t)
}

func newID() string {
	return sim.GetIDGenerator().Generate()
}

// Func implements sim.Hook.
func (t *Tracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case pl8.HookPosActivityEvent:
		e := ctx.Item.(pl8.AccessEvent)
		t.recorder.InsertData(TableActivity, ActivityEntry{
			ID:        newID(),
			Time:      float64(t.time.CurrentTime()),
			Register:  int(e.Register),
			Direction: e.Direction.String(),
		})
	case pl8.HookPosActivityDrain:
		t.recorder.InsertData(TableDrain, DrainEntry{
			ID:     newID(),
			Time:   float64(t.time.CurrentTime()),
			Events: ctx.Item.(uint64),
		})
	case pl8.HookPosTake:
		take := ctx.Item.(pl8.Take)
		t.recorder.InsertData(TableTake, TakeEntry{
			ID:        newID(),
			Time:      float64(take.Time),
			Direction: take.Direction.String(),
			Bits:      take.Bits,
		})
	case pl8.HookPosPipelineCommit:
		c := ctx.Item.(pl8.Commit)
		t.recorder.InsertData(TableCommit, CommitEntry{
			ID:       newID(),
			Time:     float64(c.Time),
			Pipeline: c.Kind.String(),
			Register: int(c.Register),
			Data:     int(c.Data),
		})
	case bus.HookPosCycleDone:
		c := ctx.Item.(bus.Completed)
		t.recorder.InsertData(TableBusCycle, BusCycleEntry{
			ID:       newID(),
			Time:     float64(c.Time),
			Op:       c.Op.String(),
			Register: int(c.Register),
			Value:    int(c.Value),
		})
	}
}
