package expr

import (
	"strconv"

	"github.com/rzpsarthak13/lionrow/internal/core"
)

// Sharder partitions keys across a fixed number of shards.
type Sharder interface {
	// Shard returns a condition selecting rows whose key falls in shard
	// index of count.
	Shard(key Expression, index, count int) Condition
}

// SnowflakeSharder assigns a snowflake ID to shard (id >> Shift) % count,
// the same assignment Discord uses for guild sharding.
type SnowflakeSharder struct {
	Shift uint
}

// Shard renders ((key >> Shift) % count) = index. A single shard, or none,
// selects everything.
func (s SnowflakeSharder) Shard(key Expression, index, count int) Condition {
	if count <= 1 {
		return True()
	}
	if index < 0 || index >= count {
		return invalid{err: core.Usagef("shard index %d out of range for %d shards", index, count)}
	}
	return comparison{
		left:   shardOf{key: key, shift: s.Shift, count: count},
		right:  Value{V: int64(index)},
		joiner: joinEquals,
	}
}

// DefaultSharder is used by ShardID.
var DefaultSharder Sharder = SnowflakeSharder{Shift: 22}

// ShardID selects the rows of key's shard under DefaultSharder.
func ShardID(key Expression, index, count int) Condition {
	return DefaultSharder.Shard(key, index, count)
}

type shardOf struct {
	key   Expression
	shift uint
	count int
}

func (s shardOf) AppendSQL(b *Builder) {
	b.WriteString("((")
	b.Append(s.key)
	b.WriteString(" >> " + strconv.FormatUint(uint64(s.shift), 10) + ") % " + strconv.Itoa(s.count) + ")")
}

func (s shardOf) Err() error {
	return errOf(s.key)
}
