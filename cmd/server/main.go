package main

import "github.com/nguyentranbao-ct/mindmap-chat/cmd"

func main() {
	cmd.Execute()
}
