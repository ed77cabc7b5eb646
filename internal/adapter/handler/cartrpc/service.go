// Package cartrpc holds the wire contract of the cart.v1.CartService gRPC
// service. Messages travel as JSON under the "json" content subtype.
package cartrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "cart.v1.CartService"

type CartServiceServer interface {
	AddItem(context.Context, *AddItemRequest) (*CartMutationResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartMutationResponse, error)
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*ClearCartResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	Recommend(context.Context, *RecommendRequest) (*RecommendResponse, error)
}

// UnimplementedCartServiceServer can be embedded to stay forward compatible.
type UnimplementedCartServiceServer struct{}

func (UnimplementedCartServiceServer) AddItem(context.Context, *AddItemRequest) (*CartMutationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AddItem not implemented")
}

func (UnimplementedCartServiceServer) RemoveItem(context.Context, *RemoveItemRequest) (*CartMutationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveItem not implemented")
}

func (UnimplementedCartServiceServer) GetCart(context.Context, *GetCartRequest) (*CartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCart not implemented")
}

func (UnimplementedCartServiceServer) ClearCart(context.Context, *ClearCartRequest) (*ClearCartResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ClearCart not implemented")
}

func (UnimplementedCartServiceServer) Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Checkout not implemented")
}

func (UnimplementedCartServiceServer) Recommend(context.Context, *RecommendRequest) (*RecommendResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Recommend not implemented")
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartService_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(CartServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CartServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var CartService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddItem", Handler: unaryHandler("AddItem", CartServiceServer.AddItem)},
		{MethodName: "RemoveItem", Handler: unaryHandler("RemoveItem", CartServiceServer.RemoveItem)},
		{MethodName: "GetCart", Handler: unaryHandler("GetCart", CartServiceServer.GetCart)},
		{MethodName: "ClearCart", Handler: unaryHandler("ClearCart", CartServiceServer.ClearCart)},
		{MethodName: "Checkout", Handler: unaryHandler("Checkout", CartServiceServer.Checkout)},
		{MethodName: "Recommend", Handler: unaryHandler("Recommend", CartServiceServer.Recommend)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cart/v1/cart.proto",
}

type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

func (c *CartServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *CartServiceClient) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*CartMutationResponse, error) {
	out := new(CartMutationResponse)
	if err := c.invoke(ctx, "AddItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) RemoveItem(ctx context.Context, in *RemoveItemRequest, opts ...grpc.CallOption) (*CartMutationResponse, error) {
	out := new(CartMutationResponse)
	if err := c.invoke(ctx, "RemoveItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	out := new(CartResponse)
	if err := c.invoke(ctx, "GetCart", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) ClearCart(ctx context.Context, in *ClearCartRequest, opts ...grpc.CallOption) (*ClearCartResponse, error) {
	out := new(ClearCartResponse)
	if err := c.invoke(ctx, "ClearCart", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	out := new(CheckoutResponse)
	if err := c.invoke(ctx, "Checkout", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CartServiceClient) Recommend(ctx context.Context, in *RecommendRequest, opts ...grpc.CallOption) (*RecommendResponse, error) {
	out := new(RecommendResponse)
	if err := c.invoke(ctx, "Recommend", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
