package common

import (
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	NA = "N/A"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

func idNode() *snowflake.Node {
	snowflakeOnce.Do(func() {
		node, err := snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
		snowflakeNode = node
	})
	return snowflakeNode
}

// UUIDint64 returns a locally unique, time ordered int64 id
func UUIDint64() int64 {
	return idNode().Generate().Int64()
}

// IfEmptyStr returns defval when src is blank
func IfEmptyStr(src string, defval string) string {
	if strings.TrimSpace(src) == "" {
		return defval
	}
	return src
}
