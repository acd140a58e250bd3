package reconciler

// FindLayerByTicks returns the layer index currently bound to tick
// among non-Invalid/non-Dead slots, or -1 if none holds it. Used by
// the order manager to detect
// a tick collision before committing a New or Replace action.
func FindLayerByTicks(sb *SideBook, tick int64) int {
	for i, t := range sb.LayerTicks {
		if t == tick && sb.Slots[i].State != Invalid && sb.Slots[i].State != Dead {
			return i
		}
	}
	return -1
}
