// Demo gate hook for shiftwise. Deployed as the target of a pre-rollout or
// confirm-promotion hook, it consults a gate record in DynamoDB and approves
// or blocks the shift. Missing records approve, so the gate is open until an
// operator writes one.
//
// Gate record: PK=GATE#{deploymentId}, SK=HOOK#{hook},
// data → {"approve": true/false, "reason": "..."}
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ddbClient *dynamodb.Client
	tableName string
	logger    *slog.Logger
)

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	tableName = os.Getenv("TABLE_NAME")
	if tableName == "" {
		logger.Error("TABLE_NAME not set")
		os.Exit(1)
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	ddbClient = dynamodb.NewFromConfig(cfg)
}

type gateRequest struct {
	Hook          string `json:"hook"`
	DeploymentID  string `json:"deploymentId"`
	Phase         string `json:"phase"`
	CurrentWeight int    `json:"currentWeight"`
	TargetWeight  int    `json:"targetWeight"`
}

type gateResponse struct {
	Proceed bool   `json:"proceed"`
	Reason  string `json:"reason,omitempty"`
}

func handler(ctx context.Context, req gateRequest) (gateResponse, error) {
	logger.Info("gate check",
		"hook", req.Hook,
		"deployment", req.DeploymentID,
		"phase", req.Phase,
		"currentWeight", req.CurrentWeight,
		"targetWeight", req.TargetWeight)

	gate, err := getGate(ctx, req.DeploymentID, req.Hook)
	if err != nil {
		return gateResponse{}, err
	}
	if gate == nil {
		return gateResponse{Proceed: true}, nil
	}

	approve, _ := gate["approve"].(bool)
	reason, _ := gate["reason"].(string)
	if !approve && reason == "" {
		reason = "gate record denies " + req.Hook
	}
	return gateResponse{Proceed: approve, Reason: reason}, nil
}

// getGate reads the gate record from DynamoDB. Returns nil when absent.
func getGate(ctx context.Context, deployment, hook string) (map[string]any, error) {
	out, err := ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: "GATE#" + deployment},
			"SK": &ddbtypes.AttributeValueMemberS{Value: "HOOK#" + hook},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	dataAttr, ok := out.Item["data"]
	if !ok {
		return nil, fmt.Errorf("gate record for %s missing data attribute", deployment)
	}
	mapAttr, ok := dataAttr.(*ddbtypes.AttributeValueMemberM)
	if !ok {
		return nil, fmt.Errorf("gate record for %s data is not a map", deployment)
	}

	result := make(map[string]any)
	for k, v := range mapAttr.Value {
		switch attr := v.(type) {
		case *ddbtypes.AttributeValueMemberBOOL:
			result[k] = attr.Value
		case *ddbtypes.AttributeValueMemberS:
			result[k] = attr.Value
		}
	}
	return result, nil
}

func main() {
	lambda.Start(handler)
}
