package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/cli/output"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/LENAX/ctas-pipeline/pkg/core/operator/createtable"
	"github.com/spf13/cobra"
)

var (
	renderSQL bool
	logicalDS string
)

// renderedTask render命令的单行输出
type renderedTask struct {
	PipelineID   string         `json:"pipeline_id"`
	TaskID       string         `json:"task_id"`
	Callable     string         `json:"callable"`
	Params       map[string]any `json:"params"`
	Dependencies []string       `json:"dependencies,omitempty"`
	SQLFile      string         `json:"sql_file"`
	SQL          string         `json:"sql,omitempty"`
}

// renderCmd 输出解析后的Task
var renderCmd = &cobra.Command{
	Use:   "render [pipeline...]",
	Short: "输出解析后的Task（可选渲染SQL）",
	Long: `加载Pipeline定义，输出每个Task解析后的参数（默认参数已合并）。
不指定Pipeline时输出全部；--sql 时额外读取并渲染SQL文件，不访问数据库。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		eng, _, err := loadEngine(ctx)
		if err != nil {
			output.Error("加载失败: %v", err)
			return err
		}
		defer eng.Stop()

		date, err := parseDS(logicalDS)
		if err != nil {
			return err
		}
		rows, err := collectTasks(ctx, eng, args, date)
		if err != nil {
			output.Error("渲染失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(rows)
		}
		if len(rows) == 0 {
			output.Info("暂无Task")
			return nil
		}

		table := output.NewTable([]string{"PIPELINE", "TASK", "CONN", "SQL FILE", "DEPENDS"})
		for _, r := range rows {
			table.AddRow(
				r.PipelineID,
				r.TaskID,
				fmt.Sprint(r.Params[createtable.KeyPostgresConnID]),
				r.SQLFile,
				strings.Join(r.Dependencies, ","),
			)
		}
		table.Render()

		if renderSQL {
			for _, r := range rows {
				fmt.Fprintf(output.Out, "\n-- %s.%s\n%s;\n", r.PipelineID, r.TaskID, r.SQL)
			}
		}
		return nil
	},
}

func init() {
	renderCmd.Flags().BoolVar(&renderSQL, "sql", false, "读取并渲染每个Task的SQL")
	renderCmd.Flags().StringVar(&logicalDS, "ds", "", "渲染使用的逻辑日期（YYYY-MM-DD，默认今天）")
}

func collectTasks(ctx context.Context, eng *engine.Engine, pipelineIDs []string, date time.Time) ([]renderedTask, error) {
	if len(pipelineIDs) == 0 {
		pipelineIDs = eng.PipelineIDs()
	}
	loader := eng.Runner().Loader()

	rows := make([]renderedTask, 0)
	for _, id := range pipelineIDs {
		p, err := eng.GetPipeline(id)
		if err != nil {
			return nil, err
		}
		for _, t := range p.Tasks() {
			row := renderedTask{
				PipelineID:   p.ID,
				TaskID:       t.ID,
				Callable:     t.JobFuncName,
				Params:       t.Params,
				Dependencies: t.GetDependencies(),
				SQLFile: loader.Path(
					fmt.Sprint(t.Params[createtable.KeySQLDirectory]),
					fmt.Sprint(t.Params[createtable.KeySchemaName]),
					fmt.Sprint(t.Params[createtable.KeyTableName]),
				),
			}
			if renderSQL {
				sql, err := eng.RenderTask(ctx, p.ID, t.ID, date)
				if err != nil {
					return nil, err
				}
				row.SQL = sql
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// parseDS 解析--ds，为空时返回零值（由执行器取当前时间）
func parseDS(ds string) (time.Time, error) {
	if ds == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("无效的--ds %q，应为YYYY-MM-DD: %w", ds, err)
	}
	return t, nil
}
