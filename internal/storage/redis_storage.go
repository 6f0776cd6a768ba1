package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/life2you_mini/riskcore/internal/models"
)

// Redis 键常量
const (
	keyMetricsHistory = "risk:metrics:history"
	keyLatestReport   = "risk:report:latest"
	keyBreakerStatus  = "risk:breaker:status"
	keyTriggerHistory = "risk:breaker:triggers"
	keyReturnSamples  = "risk:returns:portfolio"

	// 过期时间（秒）
	expiryMetrics = 86400 * 90  // 90天
	expiryReturns = 86400 * 365 // 365天
)

// ClientOptions Redis客户端配置选项
type ClientOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient 创建新的Redis客户端并验证连通性
func NewRedisClient(opts ClientOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis连接失败: %w", err)
	}

	return client, nil
}

// RedisStorage Redis存储实现
type RedisStorage struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStorage 创建Redis存储
func NewRedisStorage(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_storage")),
	}
}

// key 拼接完整的Redis键
func (s *RedisStorage) key(name string) string {
	return s.keyPrefix + name
}

// Initialize 初始化Redis存储
func (s *RedisStorage) Initialize(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Error("Redis连接失败", zap.Error(err))
		return fmt.Errorf("redis连接失败: %w", err)
	}

	s.logger.Info("Redis存储初始化成功")
	return nil
}

// Close 关闭Redis连接
func (s *RedisStorage) Close(ctx context.Context) error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("关闭Redis连接失败", zap.Error(err))
		return fmt.Errorf("关闭Redis连接失败: %w", err)
	}

	s.logger.Info("Redis连接已关闭")
	return nil
}

// Health 检查Redis健康状态
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// StoreRiskMetrics 存储风险指标快照（有序集合，按时间戳排序）
func (s *RedisStorage) StoreRiskMetrics(ctx context.Context, metrics *models.RiskMetrics) error {
	jsonData, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("序列化风险指标失败: %w", err)
	}

	historyKey := s.key(keyMetricsHistory)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(metrics.Timestamp.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, historyKey, time.Duration(expiryMetrics)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("存储风险指标失败: %w", err)
	}
	return nil
}

// GetRiskMetricsHistory 获取最近的风险指标快照，按时间降序
func (s *RedisStorage) GetRiskMetricsHistory(ctx context.Context, limit int) ([]*models.RiskMetrics, error) {
	results, err := s.client.ZRevRange(ctx, s.key(keyMetricsHistory), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取风险指标历史失败: %w", err)
	}

	history := make([]*models.RiskMetrics, 0, len(results))
	for _, raw := range results {
		var metrics models.RiskMetrics
		if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
			s.logger.Warn("反序列化风险指标失败，跳过该条记录", zap.Error(err))
			continue
		}
		history = append(history, &metrics)
	}
	return history, nil
}

// StoreRiskReport 存储最新风险报告
func (s *RedisStorage) StoreRiskReport(ctx context.Context, report *models.RiskReport) error {
	jsonData, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("序列化风险报告失败: %w", err)
	}

	if err := s.client.Set(ctx, s.key(keyLatestReport), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("存储风险报告失败: %w", err)
	}
	return nil
}

// GetLatestRiskReport 获取最新风险报告，不存在时返回(nil, nil)
func (s *RedisStorage) GetLatestRiskReport(ctx context.Context) (*models.RiskReport, error) {
	raw, err := s.client.Get(ctx, s.key(keyLatestReport)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取风险报告失败: %w", err)
	}

	var report models.RiskReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return nil, fmt.Errorf("反序列化风险报告失败: %w", err)
	}
	return &report, nil
}

// SaveBreakerStatus 持久化熔断器状态快照
func (s *RedisStorage) SaveBreakerStatus(ctx context.Context, status *models.CircuitBreakerStatus) error {
	jsonData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("序列化熔断器状态失败: %w", err)
	}

	if err := s.client.Set(ctx, s.key(keyBreakerStatus), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("持久化熔断器状态失败: %w", err)
	}
	return nil
}

// LoadBreakerStatus 加载熔断器状态快照，冷启动无快照时返回(nil, nil)
func (s *RedisStorage) LoadBreakerStatus(ctx context.Context) (*models.CircuitBreakerStatus, error) {
	raw, err := s.client.Get(ctx, s.key(keyBreakerStatus)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("加载熔断器状态失败: %w", err)
	}

	var status models.CircuitBreakerStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("反序列化熔断器状态失败: %w", err)
	}
	return &status, nil
}

// StoreTriggerRecord 存储熔断触发记录
func (s *RedisStorage) StoreTriggerRecord(ctx context.Context, record *models.TriggerRecord) error {
	jsonData, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化触发记录失败: %w", err)
	}

	historyKey := s.key(keyTriggerHistory)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(record.Timestamp.Unix()),
		Member: jsonData,
	})
	pipe.Expire(ctx, historyKey, time.Duration(expiryMetrics)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("存储触发记录失败: %w", err)
	}
	return nil
}

// GetTriggerRecords 获取最近的熔断触发记录，按时间降序
func (s *RedisStorage) GetTriggerRecords(ctx context.Context, limit int) ([]*models.TriggerRecord, error) {
	results, err := s.client.ZRevRange(ctx, s.key(keyTriggerHistory), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取触发记录失败: %w", err)
	}

	records := make([]*models.TriggerRecord, 0, len(results))
	for _, raw := range results {
		var record models.TriggerRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.Warn("反序列化触发记录失败，跳过该条记录", zap.Error(err))
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// StoreReturnSample 存储组合日收益率样本（有序集合，按时间戳排序）
func (s *RedisStorage) StoreReturnSample(ctx context.Context, value float64, timestamp time.Time) error {
	samplesKey := s.key(keyReturnSamples)

	// 成员带时间戳前缀，避免相同收益率值被有序集合去重
	member := strconv.FormatInt(timestamp.UnixNano(), 10) + ":" +
		strconv.FormatFloat(value, 'g', -1, 64)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, samplesKey, redis.Z{
		Score:  float64(timestamp.Unix()),
		Member: member,
	})
	pipe.Expire(ctx, samplesKey, time.Duration(expiryReturns)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("存储收益率样本失败: %w", err)
	}
	return nil
}

// GetReturnSamples 获取最近的收益率样本，按时间升序（旧的在前）
func (s *RedisStorage) GetReturnSamples(ctx context.Context, limit int) ([]float64, error) {
	results, err := s.client.ZRevRange(ctx, s.key(keyReturnSamples), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("获取收益率样本失败: %w", err)
	}

	// ZRevRange返回降序，反转为时间升序
	samples := make([]float64, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		raw := results[i]
		sep := strings.IndexByte(raw, ':')
		if sep < 0 {
			s.logger.Warn("收益率样本格式不正确，跳过该条记录", zap.String("raw", raw))
			continue
		}
		value, err := strconv.ParseFloat(raw[sep+1:], 64)
		if err != nil {
			s.logger.Warn("解析收益率样本失败，跳过该条记录", zap.Error(err))
			continue
		}
		samples = append(samples, value)
	}
	return samples, nil
}

// PushTask 将任务推送到队列
func (s *RedisStorage) PushTask(ctx context.Context, queue string, task interface{}) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	return s.client.LPush(ctx, s.key(queue), taskData).Err()
}

// PopTask 从队列中弹出任务（阻塞方式），超时返回(nil, nil)
func (s *RedisStorage) PopTask(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	result, err := s.client.BRPop(ctx, timeout, s.key(queue)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时
		}
		return nil, err
	}

	// BRPop返回一个包含两个元素的数组：[queueName, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("从队列获取的数据结构不正确")
	}

	return []byte(result[1]), nil
}

// QueueLength 获取队列长度
func (s *RedisStorage) QueueLength(ctx context.Context, queue string) (int64, error) {
	return s.client.LLen(ctx, s.key(queue)).Result()
}
