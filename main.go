package main

import (
	"github.com/cokeSchlumpf/openwhisk-action-manager/cmd"
	"github.com/cokeSchlumpf/openwhisk-action-manager/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
