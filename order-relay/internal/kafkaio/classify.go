package kafkaio

import (
	"context"
	"errors"
	"io"
	"net"

	"notification-hub/order-relay/internal/failure"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"
)

var authorizationKafkaErrors = map[kafka.Error]bool{
	kafka.TopicAuthorizationFailed:           true,
	kafka.GroupAuthorizationFailed:           true,
	kafka.ClusterAuthorizationFailed:         true,
	kafka.TransactionalIDAuthorizationFailed: true,
	kafka.SASLAuthenticationFailed:           true,
	kafka.UnknownTopicOrPartition:            true,
}

var authorizationSaramaErrors = map[sarama.KError]bool{
	sarama.ErrTopicAuthorizationFailed:           true,
	sarama.ErrGroupAuthorizationFailed:           true,
	sarama.ErrClusterAuthorizationFailed:         true,
	sarama.ErrTransactionalIDAuthorizationFailed: true,
	sarama.ErrSASLAuthenticationFailed:           true,
	sarama.ErrUnknownTopicOrPartition:            true,
}

func classify(op string, err error) *failure.Error {
	return failure.New(kindOf(err), op, err)
}

func kindOf(err error) failure.Kind {
	var pes sarama.ProducerErrors
	if errors.As(err, &pes) && len(pes) > 0 {
		// one failed message decides for the batch; the worst kind wins
		kind := failure.RetriableBroker
		for _, pe := range pes {
			switch k := kindOf(pe.Err); k {
			case failure.UnrecoverableBroker:
				return k
			case failure.Authorization:
				kind = k
			}
		}
		return kind
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch {
		case authorizationKafkaErrors[kerr]:
			return failure.Authorization
		case kerr.Temporary(),
			kerr == kafka.RebalanceInProgress,
			kerr == kafka.IllegalGeneration,
			kerr == kafka.UnknownMemberId:
			return failure.RetriableBroker
		}
		return failure.UnrecoverableBroker
	}

	var serr sarama.KError
	if errors.As(err, &serr) {
		switch serr {
		case sarama.ErrNotLeaderForPartition, sarama.ErrLeaderNotAvailable,
			sarama.ErrRequestTimedOut, sarama.ErrNotEnoughReplicas,
			sarama.ErrNotEnoughReplicasAfterAppend, sarama.ErrNetworkException,
			sarama.ErrConcurrentTransactions, sarama.ErrRebalanceInProgress,
			sarama.ErrConsumerCoordinatorNotAvailable, sarama.ErrNotCoordinatorForConsumer,
			sarama.ErrOffsetsLoadInProgress:
			return failure.RetriableBroker
		}
		if authorizationSaramaErrors[serr] {
			return failure.Authorization
		}
		return failure.UnrecoverableBroker
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrNotConnected),
		errors.Is(err, kafka.ErrGroupClosed):
		return failure.RetriableBroker
	}
	return failure.UnrecoverableBroker
}
