package aggregate

import "github.com/schaermu/kvsyncd/internal/codec"

// Merge overlays override onto source and returns a new tree. Neither input is
// modified.
//
// Keys only in source keep their position, keys only in override are appended
// in override order. When both sides hold a nested tree the merge recurses;
// any other combination is resolved by the override value replacing the
// source value in place.
func Merge(source, override *codec.Tree) *codec.Tree {
	if source == nil {
		return override.Clone()
	}

	merged := source.Clone()
	if override == nil {
		return merged
	}

	for _, key := range override.Keys() {
		ov, _ := override.Get(key)
		sv, exists := merged.Get(key)

		srcTree, srcIsTree := sv.(*codec.Tree)
		ovTree, ovIsTree := ov.(*codec.Tree)
		if exists && srcIsTree && ovIsTree {
			merged.Set(key, Merge(srcTree, ovTree))
			continue
		}
		merged.Set(key, codec.CloneValue(ov))
	}
	return merged
}
