// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package skin implements blend-weight skinning.
package skin

import (
	"errors"
	"sort"

	"github.com/vireoengine/forge/linear"
)

const prefix = "skin: "

// Skin defines skinning data.
type Skin struct {
	// Sorted by the original index of each
	// joint's parent, roots first; this does
	// not put every parent before its
	// descendants (hier gives that order).
	// The original ordering of the joints
	// can be inferred from the orig field.
	joints []joint
	// Only store inverse bind matrices that
	// are not the zero/identity matrix.
	ibm []linear.M4

	// hier is a permutation of [0, len(joints)) giving a
	// breadth-first traversal order over joints: a joint at
	// hier[i] always has its parent at some hier[j], j < i (or no
	// parent at all). The per-frame joint matrix update walks
	// joints in this order so that a parent's world matrix is
	// always resolved before any of its children need it.
	hier []int
}

// joint defines a skin's joint.
type joint struct {
	name string
	jm   linear.M4
	ibm  int
	// The index within Skin.joints of the
	// joint's parent (New remaps Joint's
	// Parent to it), or -1 for a root.
	parent int
	// The original index of the joint,
	// i.e., what the mesh refers in
	// its Joints* semantic(s).
	// This is necessary because Skin
	// sorts the joints by parent.
	orig int
}

// jointSlice implements sort.Interface for joint slices.
type jointSlice []joint

func (c jointSlice) Len() int           { return len(c) }
func (c jointSlice) Less(i, j int) bool { return c[i].parent < c[j].parent }
func (c jointSlice) Swap(i, j int)      { c[i], c[j] = c[j], c[i] }

// Joint describes a single joint in a skin.
// A joint hierarchy is defined by setting the Parent
// field to refer to another Joint's index within the
// slice presented to New.
// Joint.Parent can be set to -1 or less to indicate
// that the joint has no parent.
type Joint struct {
	Name   string
	JM     linear.M4
	IBM    linear.M4
	Parent int
}

// New creates a new skin from a joint hierarchy.
func New(joints []Joint) (*Skin, error) {
	n := len(joints)
	if n == 0 {
		return nil, errors.New(prefix + "[]Joint length is 0")
	}

	js := make(jointSlice, 0, n)
	var ibm []linear.M4
	var zero, ident linear.M4
	ident.I()

	for i := range joints {
		pnt := joints[i].Parent
		switch {
		case pnt >= n:
			return nil, errors.New(prefix + "Joint.Parent out of bounds")
		case pnt == i:
			return nil, errors.New(prefix + "Joint.Parent refers to itself")
		case pnt < 0:
			pnt = -1
		}

		iibm := -1
		switch joints[i].IBM {
		case zero, ident:
		default:
			iibm = len(ibm)
			ibm = append(ibm, joints[i].IBM)
		}

		js = append(js, joint{
			name:   joints[i].Name,
			jm:     joints[i].JM,
			ibm:    iibm,
			parent: pnt,
			orig:   i,
		})
	}

	sort.Sort(js)

	// js.parent currently refers to Parent's original, pre-sort
	// index (see the loop above); remap it to this joint's new
	// position within js so that it can be used to index js/hier
	// directly.
	origToPos := make([]int, n)
	for pos := range js {
		origToPos[js[pos].orig] = pos
	}
	for i := range js {
		if js[i].parent >= 0 {
			js[i].parent = origToPos[js[i].parent]
		}
	}

	return &Skin{js, ibm, hierarchy(js)}, nil
}

// hierarchy computes a breadth-first traversal order over js: the
// returned permutation visits every root (parent < 0) before any of
// its descendants, level by level.
func hierarchy(js jointSlice) []int {
	n := len(js)
	children := make([][]int, n)
	var roots []int
	for i := range js {
		if p := js[i].parent; p < 0 {
			roots = append(roots, i)
		} else {
			children[p] = append(children[p], i)
		}
	}
	order := make([]int, 0, n)
	queue := append([]int(nil), roots...)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		queue = append(queue, children[i]...)
	}
	return order
}
