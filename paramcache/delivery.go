package paramcache

// DeliveryList is an immutable (after construction) collection of
// ParameterValue items constituting one producer delivery. It provides
// constant-time lookup of the first/last value inserted for a given
// ParameterId, and preserves insertion order for iteration.
//
// Once built, a DeliveryList is never mutated. Shared references to the
// same DeliveryList are stored in multiple CacheEntry ring buffers so that
// parameters acquired together can be returned together (see
// ParameterCache.GetValues).
type DeliveryList struct {
	values []*ParameterValue
	// index maps a ParameterId to the positions in values, in insertion
	// order, that carry that id. Most deliveries carry each parameter at
	// most once, so the common case is a one-element slice.
	index map[ParameterId][]int
}

// NewDeliveryList builds a DeliveryList from values, preserving their
// order. An empty delivery is legal to construct but the cache never
// stores one (ParameterCache.Update is a no-op for an empty slice).
func NewDeliveryList(values []*ParameterValue) *DeliveryList {
	dl := &DeliveryList{
		values: values,
		index:  make(map[ParameterId][]int, len(values)),
	}
	for i, pv := range values {
		dl.index[pv.Parameter] = append(dl.index[pv.Parameter], i)
	}
	return dl
}

// Len returns the number of values in the delivery.
func (d *DeliveryList) Len() int { return len(d.values) }

// FirstInserted returns the earliest value in the delivery for pid, or nil
// if pid does not appear.
func (d *DeliveryList) FirstInserted(pid ParameterId) *ParameterValue {
	positions, ok := d.index[pid]
	if !ok || len(positions) == 0 {
		return nil
	}
	return d.values[positions[0]]
}

// LastInserted returns the latest value in the delivery for pid, or nil if
// pid does not appear.
func (d *DeliveryList) LastInserted(pid ParameterId) *ParameterValue {
	positions, ok := d.index[pid]
	if !ok || len(positions) == 0 {
		return nil
	}
	return d.values[positions[len(positions)-1]]
}

// ForEach invokes f for every occurrence of pid in the delivery, in
// insertion order.
func (d *DeliveryList) ForEach(pid ParameterId, f func(*ParameterValue)) {
	for _, i := range d.index[pid] {
		f(d.values[i])
	}
}

// Contains reports whether pid appears anywhere in the delivery.
func (d *DeliveryList) Contains(pid ParameterId) bool {
	positions, ok := d.index[pid]
	return ok && len(positions) > 0
}

// ParameterIds returns the distinct ParameterIds present in the delivery,
// in order of first appearance.
func (d *DeliveryList) ParameterIds() []ParameterId {
	ids := make([]ParameterId, 0, len(d.index))
	seen := make(map[ParameterId]bool, len(d.index))
	for _, pv := range d.values {
		if !seen[pv.Parameter] {
			seen[pv.Parameter] = true
			ids = append(ids, pv.Parameter)
		}
	}
	return ids
}
