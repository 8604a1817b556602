package main

import "github.com/huanfeng/xapk-patcher/cmd"

func main() {
	cmd.Execute()
}
