package census

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerFromQuery(t *testing.T) {
	tests := []struct {
		query string
		exp   string
	}{
		{query: "select 1 /*worker_type:ExportWorker*/", exp: "ExportWorker"},
		{query: "/*application:sidekiq,worker_type:Ci::BuildWorker,db_config_name:ci*/ update builds set x = 1", exp: "Ci::BuildWorker"},
		{query: "select * from projects", exp: ""},
		{query: "select 'worker_type:Spoofed'", exp: ""},
		{query: "", exp: ""},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			assert.Equal(t, test.exp, WorkerFromQuery(test.query))
		})
	}
}
