/*
Package rabbitmq provides a RabbitMQ transport for the service bus.
Point-to-point sends go through the default exchange with the destination queue as routing key;
native topic publishes go to the durable "integration" topic exchange. NewWithAMQPConn includes an
auto-reconnect publisher.
*/
package rabbitmq
