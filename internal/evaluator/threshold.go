package evaluator

import (
	"wisefido-vitals-hub/internal/config"
	"wisefido-vitals-hub/internal/models"
)

// EvaluateThresholds 静态阈值评估。纯函数，相同输入永远产生相同的报警集合。
// 非正值读数视为该信号缺失，跳过评估；阈值互不重叠，单条读数每个信号
// 最多触发一条报警
func EvaluateThresholds(heartRate, spo2 float64, timestamp int64, th config.Thresholds) []models.Alert {
	var alerts []models.Alert

	if heartRate > 0 {
		if heartRate > th.BPMHigh {
			threshold := th.BPMHigh
			alerts = append(alerts, models.Alert{
				AlertType: models.AlertTypeThreshold,
				Source:    models.SourceBPMHigh,
				Value:     heartRate,
				Threshold: &threshold,
				Timestamp: timestamp,
			})
		} else if heartRate < th.BPMLow {
			threshold := th.BPMLow
			alerts = append(alerts, models.Alert{
				AlertType: models.AlertTypeThreshold,
				Source:    models.SourceBPMLow,
				Value:     heartRate,
				Threshold: &threshold,
				Timestamp: timestamp,
			})
		}
	}

	if spo2 > 0 && spo2 < th.SpO2Low {
		threshold := th.SpO2Low
		alerts = append(alerts, models.Alert{
			AlertType: models.AlertTypeThreshold,
			Source:    models.SourceSpO2Low,
			Value:     spo2,
			Threshold: &threshold,
			Timestamp: timestamp,
		})
	}

	return alerts
}
