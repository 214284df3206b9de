package jobs

import (
	"strconv"
	"time"
)

func (w *Worker) now() time.Time { return time.Now() }

func strconvItoa64(n int64) string { return strconv.FormatInt(n, 10) }
