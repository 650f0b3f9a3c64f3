// Copyright 2024 The miniforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

import "github.com/samber/lo"

// optimize runs the two cleanup passes (empty-block removal, then
// linear-block merging) to fixpoint.
func optimize(g *Graph) {
	for {
		a := removeEmptyBlocks(g)
		b := mergeLinearBlocks(g)
		if !a && !b {
			return
		}
	}
}

// removeEmptyBlocks unlinks any internal block with zero statements,
// exactly one predecessor and exactly one successor, rewiring the
// predecessor directly to the successor in the same slot so successor
// ordering (true/false branch position) is preserved.
func removeEmptyBlocks(g *Graph) bool {
	changed := false
	removed := make(map[*Block]bool)

	for _, blk := range g.Blocks {
		if blk.IsEntry || blk.IsExit {
			continue
		}
		if len(blk.Stmts) != 0 || len(blk.Preds) != 1 || len(blk.Succs) != 1 {
			continue
		}
		pred := blk.Preds[0]
		succ := blk.Succs[0]
		if pred == blk || succ == blk {
			continue
		}

		for i, s := range pred.Succs {
			if s == blk {
				pred.Succs[i] = succ
			}
		}
		pred.Succs = lo.Uniq(pred.Succs)

		kept := make([]*Block, 0, len(succ.Preds))
		for _, p := range succ.Preds {
			if p != blk {
				kept = append(kept, p)
			}
		}
		if !lo.Contains(kept, pred) {
			kept = append(kept, pred)
		}
		succ.Preds = kept

		removed[blk] = true
		changed = true
	}

	if changed {
		g.Blocks = lo.Filter(g.Blocks, func(b *Block, _ int) bool { return !removed[b] })
	}
	return changed
}

// mergeLinearBlocks splices any block with a single successor that in
// turn has this block as its single predecessor into one block,
// carrying both statement lists and the successor's outgoing edges.
func mergeLinearBlocks(g *Graph) bool {
	changed := false
	removed := make(map[*Block]bool)

	for _, a := range g.Blocks {
		if removed[a] || a.IsExit || len(a.Succs) != 1 {
			continue
		}
		b := a.Succs[0]
		if b == a || removed[b] || b.IsEntry || b.IsExit {
			continue
		}
		if len(b.Preds) != 1 || b.Preds[0] != a {
			continue
		}

		a.Stmts = append(a.Stmts, b.Stmts...)
		a.Succs = b.Succs
		for _, s2 := range b.Succs {
			for i, p := range s2.Preds {
				if p == b {
					s2.Preds[i] = a
				}
			}
			s2.Preds = lo.Uniq(s2.Preds)
		}
		removed[b] = true
		changed = true
	}

	if changed {
		g.Blocks = lo.Filter(g.Blocks, func(blk *Block, _ int) bool { return !removed[blk] })
	}
	return changed
}

// finalizeEdges derives the deduplicated edge list from block
// adjacency once optimization has settled.
func finalizeEdges(g *Graph) {
	type key struct{ from, to *Block }
	seen := make(map[key]bool)
	g.Edges = nil
	for _, blk := range g.Blocks {
		for _, s := range blk.Succs {
			k := key{blk, s}
			if seen[k] {
				continue
			}
			seen[k] = true
			g.Edges = append(g.Edges, Edge{From: blk, To: s})
		}
	}
}
