package main

import (
	"os"
	_ "time/tzdata" // 전략 타임존(Asia/Shanghai 등)을 시스템 zoneinfo 없이 로드

	"github.com/wangshuile/jb-quant/cmd/quant/commands"
)

// main is the entry point for the jb-quant CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
