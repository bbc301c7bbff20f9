// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package skin

import (
	"unsafe"

	"github.com/vireoengine/forge/driver"
	"github.com/vireoengine/forge/internal/shaderlayout"
	"github.com/vireoengine/forge/linear"
	"github.com/vireoengine/forge/resource"
)

// Instance is a per-skin-instance allocation in a Manager's bone
// matrix pool: one contiguous run of shaderlayout.JointLayout
// entries, sized to its Skin's joint count, that the skinning
// compute pass reads joint/normal matrices from and a mesh
// instance's post-skinning vertex buffer is computed against.
// Several Instances commonly share one Skin (one per mesh instance
// animated independently).
type Instance struct {
	skin *Skin
	cb   *resource.Buffer
}

// Skin returns the Skin this instance was created from.
func (inst *Instance) Skin() *Skin { return inst.skin }

// Slot returns the bindless slot of the instance's joint matrix
// buffer, for binding to the skinning compute pass.
func (inst *Instance) Slot() driver.DescriptorSlot { return inst.cb.Slot }

func (inst *Instance) jointCount() int { return len(inst.skin.joints) }

// Manager owns the bone-matrix pool backing every skin Instance it
// creates, plus the set of instances whose joint matrices changed
// since the skinning compute pass last ran.
type Manager struct {
	res     *resource.Manager
	pending map[*Instance]struct{}
}

// NewManager creates a Manager allocating joint matrix buffers
// through res.
func NewManager(res *resource.Manager) *Manager {
	return &Manager{res: res, pending: make(map[*Instance]struct{})}
}

// NewInstance allocates a bone-matrix pool entry sized for s's
// joint count.
func (mgr *Manager) NewInstance(s *Skin) (*Instance, error) {
	n := len(s.joints)
	size := int64(n) * int64(unsafe.Sizeof(shaderlayout.JointLayout{}))
	cb, err := mgr.res.NewBuffer(size, true, driver.UShaderRead, driver.DConstant)
	if err != nil {
		return nil, err
	}
	return &Instance{skin: s, cb: cb}, nil
}

// FreeInstance defers release of inst's bone-matrix pool entry and
// drops any pending dispatch it had queued.
func (mgr *Manager) FreeInstance(inst *Instance) {
	delete(mgr.pending, inst)
	mgr.res.FreeBuffer(inst.cb)
}

// setJoint writes joint i's matrix and derived normal matrix into
// inst's backing buffer at the byte offset matching shaderlayout's
// per-joint stride.
func (inst *Instance) setJoint(i int, jm, normal *linear.M4) {
	var l shaderlayout.JointLayout
	l.SetJoint(jm)
	l.SetNormal(normal)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l))
	off := i * int(unsafe.Sizeof(shaderlayout.JointLayout{}))
	copy(inst.cb.Res.Bytes()[off:], raw)
}

// SetJoint writes joint i's matrix and derived normal matrix into
// inst's pool entry, and marks inst as needing a skinning compute
// dispatch before it is next drawn. i must be in range
// [0, inst's Skin joint count).
func (mgr *Manager) SetJoint(inst *Instance, i int, jm, normal *linear.M4) {
	if i < 0 || i >= inst.jointCount() {
		panic("skin: SetJoint: joint index out of range")
	}
	inst.setJoint(i, jm, normal)
	mgr.pending[inst] = struct{}{}
}

// Flush returns every instance queued for a skinning compute
// dispatch since the last Flush call and clears the queue. A
// render graph's skinning pass calls this once per frame to build
// its dispatch list; an instance with no pending joint updates
// keeps whatever post-skinning vertices it last computed.
func (mgr *Manager) Flush() []*Instance {
	if len(mgr.pending) == 0 {
		return nil
	}
	out := make([]*Instance, 0, len(mgr.pending))
	for inst := range mgr.pending {
		out = append(out, inst)
	}
	mgr.pending = make(map[*Instance]struct{})
	return out
}
