package blob

// Tupellum composes two already-defined records contiguously: A placed
// inline, then B immediately after A's footprint, word-aligned.
// It exists purely to chain records together into one typed
// sequence reachable from a single base offset. The Automaton image does
// not use it: its top-level sections are found through the offsets stored
// in the image's root header.

// WriteTupellum runs writeA then writeB in sequence, word-aligning between
// them, and returns (offA, offB).
func WriteTupellum(w *Writer, writeA func(w *Writer), writeB func(w *Writer)) (offA, offB uint64) {
	offA = w.Pos()
	writeA(w)
	w.Align(WordSize)
	offB = w.Pos()
	writeB(w)
	return offA, offB
}
