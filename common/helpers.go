package common

import (
	"io"

	"github.com/yearn/stack-router/log"
)

func CloseOrLog(c io.Closer, logger *log.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("error closing", "closer", c, "err", err)
	}
}
