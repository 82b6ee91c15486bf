package main

import (
	"github.com/galdor/go-service/pkg/service"
)

func main() {
	service.Run("scheduler", "a clustered task scheduler with a single active instance",
		NewService())
}
