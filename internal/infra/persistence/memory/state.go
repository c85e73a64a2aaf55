package memory

import (
	"encoding/json"
	"fmt"

	"binmap/pkg/domain"
)

type memoryState struct {
	blueprints   map[string]domain.Blueprint
	drawers      map[string]domain.Drawer
	compartments map[string]domain.Compartment
	parts        map[string]domain.Part
	inventory    map[string]domain.Inventory
	transactions map[string]domain.InventoryTransaction
	revisions    map[string]domain.BlueprintRevision
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Blueprints   map[string]domain.Blueprint            `json:"blueprints"`
	Drawers      map[string]domain.Drawer               `json:"drawers"`
	Compartments map[string]domain.Compartment          `json:"compartments"`
	Parts        map[string]domain.Part                 `json:"parts"`
	Inventory    map[string]domain.Inventory            `json:"inventory"`
	Transactions map[string]domain.InventoryTransaction `json:"transactions"`
	Revisions    map[string]domain.BlueprintRevision    `json:"revisions"`
}

// Buckets lists the snapshot buckets in persistence order. Durable stores
// write one row per bucket.
var Buckets = []string{"blueprints", "drawers", "compartments", "parts", "inventory", "transactions", "revisions"}

func newMemoryState() memoryState {
	return memoryState{
		blueprints:   make(map[string]domain.Blueprint),
		drawers:      make(map[string]domain.Drawer),
		compartments: make(map[string]domain.Compartment),
		parts:        make(map[string]domain.Part),
		inventory:    make(map[string]domain.Inventory),
		transactions: make(map[string]domain.InventoryTransaction),
		revisions:    make(map[string]domain.BlueprintRevision),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.blueprints {
		cloned.blueprints[k] = cloneBlueprint(v)
	}
	for k, v := range s.drawers {
		cloned.drawers[k] = cloneDrawer(v)
	}
	for k, v := range s.compartments {
		cloned.compartments[k] = cloneCompartment(v)
	}
	for k, v := range s.parts {
		cloned.parts[k] = clonePart(v)
	}
	for k, v := range s.inventory {
		cloned.inventory[k] = v
	}
	for k, v := range s.transactions {
		cloned.transactions[k] = cloneTransaction(v)
	}
	for k, v := range s.revisions {
		cloned.revisions[k] = cloneRevision(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Blueprints:   cloned.blueprints,
		Drawers:      cloned.drawers,
		Compartments: cloned.compartments,
		Parts:        cloned.parts,
		Inventory:    cloned.inventory,
		Transactions: cloned.transactions,
		Revisions:    cloned.revisions,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		blueprints:   s.Blueprints,
		drawers:      s.Drawers,
		compartments: s.Compartments,
		parts:        s.Parts,
		inventory:    s.Inventory,
		transactions: s.Transactions,
		revisions:    s.Revisions,
	}
	return state.clone()
}

// migrateSnapshot normalises snapshots written by older builds or edited by
// hand: empty buckets are allocated, orphaned children dropped, half-set
// lock fields cleared and the version high-water mark repaired.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Blueprints == nil {
		snapshot.Blueprints = map[string]domain.Blueprint{}
	}
	if snapshot.Drawers == nil {
		snapshot.Drawers = map[string]domain.Drawer{}
	}
	if snapshot.Compartments == nil {
		snapshot.Compartments = map[string]domain.Compartment{}
	}
	if snapshot.Parts == nil {
		snapshot.Parts = map[string]domain.Part{}
	}
	if snapshot.Inventory == nil {
		snapshot.Inventory = map[string]domain.Inventory{}
	}
	if snapshot.Transactions == nil {
		snapshot.Transactions = map[string]domain.InventoryTransaction{}
	}
	if snapshot.Revisions == nil {
		snapshot.Revisions = map[string]domain.BlueprintRevision{}
	}

	for id, drawer := range snapshot.Drawers {
		if _, ok := snapshot.Blueprints[drawer.BlueprintID]; !ok {
			delete(snapshot.Drawers, id)
		}
	}
	for id, compartment := range snapshot.Compartments {
		if _, ok := snapshot.Drawers[compartment.DrawerID]; !ok {
			delete(snapshot.Compartments, id)
		}
	}
	for id, row := range snapshot.Inventory {
		_, hasCompartment := snapshot.Compartments[row.CompartmentID]
		_, hasPart := snapshot.Parts[row.PartID]
		if !hasCompartment || !hasPart {
			delete(snapshot.Inventory, id)
			continue
		}
		if row.Quantity < 0 {
			row.Quantity = 0
			snapshot.Inventory[id] = row
		}
	}

	maxVersion := map[string]int{}
	for id, rev := range snapshot.Revisions {
		if _, ok := snapshot.Blueprints[rev.BlueprintID]; !ok {
			delete(snapshot.Revisions, id)
			continue
		}
		if rev.Version > maxVersion[rev.BlueprintID] {
			maxVersion[rev.BlueprintID] = rev.Version
		}
	}
	for id, bp := range snapshot.Blueprints {
		if bp.LockedBy == nil || *bp.LockedBy == "" || bp.LockTimestamp == nil {
			bp.LockedBy = nil
			bp.LockTimestamp = nil
		}
		if v := maxVersion[id]; v > bp.LastRevisionVersion {
			bp.LastRevisionVersion = v
		}
		snapshot.Blueprints[id] = bp
	}
	return snapshot
}

// EncodeBuckets marshals each snapshot bucket to JSON keyed by bucket name.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		data, err := json.Marshal(s.bucket(bucket))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "blueprints":
		target = &s.Blueprints
	case "drawers":
		target = &s.Drawers
	case "compartments":
		target = &s.Compartments
	case "parts":
		target = &s.Parts
	case "inventory":
		target = &s.Inventory
	case "transactions":
		target = &s.Transactions
	case "revisions":
		target = &s.Revisions
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func (s Snapshot) bucket(name string) any {
	switch name {
	case "blueprints":
		return s.Blueprints
	case "drawers":
		return s.Drawers
	case "compartments":
		return s.Compartments
	case "parts":
		return s.Parts
	case "inventory":
		return s.Inventory
	case "transactions":
		return s.Transactions
	case "revisions":
		return s.Revisions
	}
	return nil
}

func cloneBlueprint(b domain.Blueprint) domain.Blueprint {
	cp := b
	cp.LockedBy = cloneString(b.LockedBy)
	cp.BackgroundImageID = cloneString(b.BackgroundImageID)
	if b.LockTimestamp != nil {
		ts := *b.LockTimestamp
		cp.LockTimestamp = &ts
	}
	return cp
}

func cloneDrawer(d domain.Drawer) domain.Drawer {
	cp := d
	cp.GridRows = cloneInt(d.GridRows)
	cp.GridCols = cloneInt(d.GridCols)
	cp.Label = cloneString(d.Label)
	return cp
}

func cloneCompartment(c domain.Compartment) domain.Compartment {
	cp := c
	cp.Label = cloneString(c.Label)
	return cp
}

func clonePart(p domain.Part) domain.Part {
	cp := p
	cp.Description = cloneString(p.Description)
	return cp
}

func cloneTransaction(t domain.InventoryTransaction) domain.InventoryTransaction {
	cp := t
	cp.SourceCompartmentID = cloneString(t.SourceCompartmentID)
	cp.DestCompartmentID = cloneString(t.DestCompartmentID)
	cp.Notes = cloneString(t.Notes)
	return cp
}

func cloneRevision(r domain.BlueprintRevision) domain.BlueprintRevision {
	cp := r
	cp.State = r.State.Clone()
	cp.Description = cloneString(r.Description)
	return cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
