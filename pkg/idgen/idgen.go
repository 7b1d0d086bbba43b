// Package idgen 基于雪花算法生成业务单号
package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	mu   sync.Mutex
)

// Init 以指定节点号初始化生成器。多实例部署时各实例节点号必须不同。
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("failed to init snowflake node %d: %w", nodeID, err)
	}
	node = n
	return nil
}

func get() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		n, err := snowflake.NewNode(1)
		if err != nil {
			panic(fmt.Sprintf("idgen: default node init failed: %v", err))
		}
		node = n
	}
	return node
}

// GenID 生成数值 ID
func GenID() int64 {
	return get().Generate().Int64()
}

// GenIDString 生成字符串 ID
func GenIDString() string {
	return get().Generate().String()
}

// NextNo 生成带业务前缀的单号，如 PAY1849261...
func NextNo(prefix string) string {
	return prefix + GenIDString()
}
