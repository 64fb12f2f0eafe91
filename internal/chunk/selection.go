package chunk

import "fmt"

// ToggleSelection flips the selection of a completed chunk. Chunks in any other
// status cannot be selected.
func (s *Store) ToggleSelection(id int) error {
	s.mu.Lock()

	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf(errFmtChunkNotFound, ErrChunkNotFound, id)
	}

	if rec.status != StatusCompleted {
		status := rec.status
		s.mu.Unlock()

		return fmt.Errorf("%w: chunk %d is %s", ErrNotSelectable, id, status)
	}

	rec.selected = !rec.selected
	snapshot := rec.snapshot(s.indexOf(id))

	s.mu.Unlock()

	s.notify(snapshot)

	return nil
}

// ToggleSelectAll sets the selection of every completed chunk to checked.
// Other chunks are left unselected.
func (s *Store) ToggleSelectAll(checked bool) {
	s.mu.Lock()

	var changed []Chunk

	for i, id := range s.order {
		rec := s.records[id]
		if rec.status != StatusCompleted || rec.selected == checked {
			continue
		}

		rec.selected = checked
		changed = append(changed, rec.snapshot(i+1))
	}

	s.mu.Unlock()

	for _, snapshot := range changed {
		s.notify(snapshot)
	}
}

// SelectedCount returns how many chunks are selected.
func (s *Store) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0

	for _, rec := range s.records {
		if rec.selected {
			count++
		}
	}

	return count
}

// HasSelection reports whether at least one chunk is selected.
func (s *Store) HasSelection() bool {
	return s.SelectedCount() > 0
}

// AllSelected reports whether the list is non-empty and every chunk is
// selected.
func (s *Store) AllSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return false
	}

	for _, rec := range s.records {
		if !rec.selected {
			return false
		}
	}

	return true
}

// TotalDuration returns the summed duration in seconds of completed chunks.
func (s *Store) TotalDuration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0.0

	for _, rec := range s.records {
		if rec.status == StatusCompleted {
			total += rec.duration
		}
	}

	return total
}
