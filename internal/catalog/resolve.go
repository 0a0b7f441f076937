package catalog

import (
	"fmt"
	"sort"

	"pitrctl/internal/errors"
	"pitrctl/internal/logger"
	"pitrctl/internal/stamp"
)

// Chain is the ordered set of backups a restore applies: one full
// base, then zero or more incrementals oldest first.
type Chain struct {
	Base         Entry
	Incrementals []Entry
}

// LastStamp returns the stamp of the newest backup in the chain. It
// marks where binlog replay picks up.
func (c Chain) LastStamp() stamp.Stamp {
	last := c.Base.Stamp
	for _, inc := range c.Incrementals {
		last = stamp.Max(last, inc.Stamp)
	}
	return last
}

// Validate checks the chain against a recovery target: the base must
// not be newer than the target, and the incrementals must be strictly
// ascending after the base and no later than the target.
func (c Chain) Validate(target stamp.Stamp) error {
	if target.Before(c.Base.Stamp) {
		return errors.New(errors.CodeChainBroken, errors.CategoryCatalog,
			fmt.Sprintf("full backup %s is newer than target %s", c.Base.Stamp, target))
	}
	prev := c.Base.Stamp
	for _, inc := range c.Incrementals {
		if !prev.Before(inc.Stamp) {
			return errors.New(errors.CodeChainBroken, errors.CategoryCatalog,
				fmt.Sprintf("incremental %s is out of order after %s", inc.Stamp, prev))
		}
		if target.Before(inc.Stamp) {
			return errors.New(errors.CodeChainBroken, errors.CategoryCatalog,
				fmt.Sprintf("incremental %s is newer than target %s", inc.Stamp, target))
		}
		prev = inc.Stamp
	}
	return nil
}

// Resolve picks the backup chain for a recovery target.
//
// The anchor is the newest backup, full or incremental, whose stamp is
// at or before the target. A full anchor restores that full plus every
// incremental strictly between it and the target. An incremental
// anchor restores the newest full overall plus that single
// incremental; anything after the anchor is reached through binlog
// replay.
func Resolve(entries []Entry, target stamp.Stamp, log logger.Logger) (Chain, error) {
	var anchor Entry
	found := false
	for _, e := range entries {
		if e.Stamp.After(target) {
			continue
		}
		if !found || anchor.Stamp.Before(e.Stamp) {
			anchor = e
			found = true
		}
	}
	if !found {
		return Chain{}, errors.New(errors.CodeNoBackupFound, errors.CategoryCatalog,
			fmt.Sprintf("no backup found at or before %s", target))
	}

	if anchor.Kind == KindFull {
		return Chain{
			Base:         anchor,
			Incrementals: incrementalsBetween(entries, anchor.Stamp, target),
		}, nil
	}

	// Incremental anchor: base it on the newest full backup.
	var base Entry
	fullCount := 0
	for _, e := range entries {
		if e.Kind != KindFull {
			continue
		}
		fullCount++
		if fullCount == 1 || base.Stamp.Before(e.Stamp) {
			base = e
		}
	}
	if fullCount == 0 {
		return Chain{}, errors.New(errors.CodeChainBroken, errors.CategoryCatalog,
			fmt.Sprintf("incremental backup %s has no full backup to base on", anchor.Stamp))
	}
	if fullCount > 1 {
		log.Warn("multiple full backups exist, assuming the incremental is based on the newest",
			"base", base.Stamp, "incremental", anchor.Stamp)
	}
	if !base.Stamp.Before(anchor.Stamp) {
		return Chain{}, errors.New(errors.CodeChainBroken, errors.CategoryCatalog,
			fmt.Sprintf("incremental %s is not newer than full backup %s", anchor.Stamp, base.Stamp))
	}

	return Chain{Base: base, Incrementals: []Entry{anchor}}, nil
}

// ResolveExplicit builds a chain from operator-supplied stamps.
// Explicit incrementals keep the given order; when none are supplied
// the incrementals between the full and the target are discovered
// automatically.
func ResolveExplicit(entries []Entry, full stamp.Stamp, incrementals []stamp.Stamp, target stamp.Stamp) (Chain, error) {
	byKey := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byKey[entryKey(e.Kind, e.Stamp)] = e
	}

	base, ok := byKey[entryKey(KindFull, full)]
	if !ok {
		return Chain{}, errors.New(errors.CodeNoBackupFound, errors.CategoryCatalog,
			fmt.Sprintf("full backup %s not found", full))
	}

	chain := Chain{Base: base}
	if len(incrementals) == 0 {
		chain.Incrementals = incrementalsBetween(entries, base.Stamp, target)
		return chain, nil
	}
	for _, s := range incrementals {
		inc, ok := byKey[entryKey(KindIncremental, s)]
		if !ok {
			return Chain{}, errors.New(errors.CodeNoBackupFound, errors.CategoryCatalog,
				fmt.Sprintf("incremental backup %s not found", s))
		}
		chain.Incrementals = append(chain.Incrementals, inc)
	}
	return chain, nil
}

// incrementalsBetween returns the incrementals strictly inside
// (base, target) ascending. An incremental stamped exactly at the
// target is excluded; that state is reached through binlog replay.
func incrementalsBetween(entries []Entry, base, target stamp.Stamp) []Entry {
	var incs []Entry
	for _, e := range entries {
		if e.Kind != KindIncremental {
			continue
		}
		if base.Before(e.Stamp) && e.Stamp.Before(target) {
			incs = append(incs, e)
		}
	}
	sortByStamp(incs)
	return incs
}

func sortByStamp(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Stamp.Before(entries[j].Stamp)
	})
}
