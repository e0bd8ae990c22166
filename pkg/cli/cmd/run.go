package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/cli/output"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/spf13/cobra"
)

var runsLimit int

// runCmd 立即执行一次Pipeline
var runCmd = &cobra.Command{
	Use:   "run <pipeline>",
	Short: "立即执行一次Pipeline",
	Args:  cobra.ExactArgs(1),
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
		res, runErr := eng.TriggerWithRequest(ctx, args[0], executor.RunRequest{
			Trigger:     executor.TriggerManual,
			LogicalDate: date,
		})
		if res == nil {
			output.Error("执行失败: %v", runErr)
			return runErr
		}

		if outputJSON {
			if err := output.PrintJSON(res); err != nil {
				return err
			}
			return runErr
		}

		ids := make([]string, 0, len(res.Tasks))
		for id := range res.Tasks {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return res.Tasks[ids[i]].StartTime.Before(res.Tasks[ids[j]].StartTime)
		})

		table := output.NewTable([]string{"TASK", "STATUS", "ATTEMPTS", "DURATION", "ERROR"})
		for _, id := range ids {
			tr := res.Tasks[id]
			table.AddRow(id, output.Status(tr.Status), fmt.Sprint(tr.Attempts), tr.Duration.Round(time.Millisecond).String(), tr.Error)
		}
		table.Render()

		if runErr != nil {
			output.Error("运行 %s 失败", res.RunID)
			return runErr
		}
		output.Success("运行 %s 完成，用时 %s", res.RunID, res.EndTime.Sub(res.StartTime).Round(time.Millisecond))
		return nil
	},
}

// runsCmd 查询运行历史
var runsCmd = &cobra.Command{
	Use:   "runs <pipeline>",
	Short: "查询Pipeline最近的运行记录",
	Args:  cobra.ExactArgs(1),
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

		runs, err := eng.RunRepository().ListRuns(ctx, args[0], runsLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}
		if outputJSON {
			return output.PrintJSON(runs)
		}
		if len(runs) == 0 {
			output.Info("暂无运行记录")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "TRIGGER", "STATUS", "STARTED", "DURATION"})
		for _, r := range runs {
			duration := ""
			if r.EndTime != nil {
				duration = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
			}
			table.AddRow(r.ID, r.Trigger, output.Status(r.Status), r.StartTime.Format("2006-01-02 15:04:05"), duration)
		}
		table.Render()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&logicalDS, "ds", "", "运行使用的逻辑日期（YYYY-MM-DD，默认今天）")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "返回记录数量限制")
}
