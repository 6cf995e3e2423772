package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string from the process-wide node.
// The node ID comes from SNOWFLAKE_NODE (default 1). If the node cannot be
// created it falls back to a KSUID string so an ID is always returned.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		node, _ = snowflake.NewNode(nodeIDFromEnv())
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}

func nodeIDFromEnv() int64 {
	v := os.Getenv("SNOWFLAKE_NODE")
	if v == "" {
		return 1
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 1
	}
	return id
}
